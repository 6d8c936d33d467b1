// Package storage defines the durable entities and the narrow query
// interface the core calls through. The concrete store is a relational
// database reached via a connection pool; see the postgres subpackage.
package storage
