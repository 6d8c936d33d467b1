package storage

// Event is one tracked client-side occurrence. Tenant, SessionID, and AnonID
// are always non-empty; Name defaults to "" and Props to "{}" for malformed
// clients, never to a null-like value.
type Event struct {
	Tenant    string
	SessionID string
	AnonID    string
	// UserID is empty until the connection identifies.
	UserID string
	Name   string
	// Props is an opaque serialized payload, e.g. JSON text.
	Props string
	// Ts is the client-supplied occurrence time in ms since epoch.
	Ts int64
}

// Flag is a named boolean toggle scoped to a tenant. (Tenant, Key) is unique.
type Flag struct {
	Tenant      string
	Key         string
	Name        string
	Enabled     bool
	UpdatedAtMs int64
}
