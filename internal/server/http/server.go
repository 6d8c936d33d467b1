package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rzbill/pulse/internal/runtime"
	"github.com/rzbill/pulse/internal/server/ws"
	"github.com/rzbill/pulse/internal/storage"
	logpkg "github.com/rzbill/pulse/pkg/log"
)

type Server struct {
	rt       *runtime.Runtime
	logger   logpkg.Logger
	srv      *http.Server
	lis      net.Listener
	upgrader websocket.Upgrader

	// connCtx is cancelled on shutdown to unblock hijacked WebSocket
	// readers; their request contexts only end when the handler returns,
	// and http.Server.Shutdown skips hijacked connections entirely.
	connCtx    context.Context
	connCancel context.CancelFunc
}

func New(rt *runtime.Runtime, logger logpkg.Logger) *Server {
	mux := http.NewServeMux()
	connCtx, connCancel := context.WithCancel(context.Background())
	s := &Server{
		rt:         rt,
		logger:     logger.WithComponent("http"),
		srv:        &http.Server{Handler: cors(mux)},
		connCtx:    connCtx,
		connCancel: connCancel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// browser SDKs connect from arbitrary origins
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	mux.HandleFunc("/v1/connect", s.handleConnect)
	mux.HandleFunc("/v1/healthz", s.handleHealth)
	mux.HandleFunc("/v1/flags", s.handleFlagsList)
	mux.HandleFunc("/v1/flags/toggle", s.handleFlagToggle)
	mux.HandleFunc("/v1/flags/refresh", s.handleFlagRefresh)
	mux.Handle("/metrics", promhttp.Handler())
	return s
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		s.connCancel()
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) Close() {
	s.connCancel()
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.CheckHealth(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "not_serving"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleConnect validates the query parameters, upgrades the socket and
// hands it to the connection handler, which owns it until close.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	params := ws.Params{
		Tenant:    q.Get("tenant"),
		SessionID: q.Get("session"),
		AnonID:    q.Get("anon"),
	}
	if err := s.rt.TenantRules().Validate(params.Tenant); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if params.SessionID == "" || params.AnonID == "" {
		http.Error(w, "session and anon are required", http.StatusBadRequest)
		return
	}
	sock, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		s.logger.Warn("websocket upgrade failed", logpkg.Err(err))
		return
	}
	conn := ws.NewConn(sock, params, ws.Deps{
		Batcher:  s.rt.Batcher(),
		Flags:    s.rt.FlagCache(),
		Registry: s.rt.Registry(),
		Store:    s.rt.Store(),
		IDs:      s.rt.IDs(),
		Logger:   s.rt.Logger(),
	})
	// the server's shutdown context, not r.Context(): a hijacked request's
	// context is not cancelled until the handler returns
	conn.Run(s.connCtx)
}

type flagView struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	Enabled   bool   `json:"enabled"`
	UpdatedAt int64  `json:"updatedAtMs"`
}

func (s *Server) handleFlagsList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenant := r.URL.Query().Get("tenant")
	if err := s.rt.TenantRules().Validate(tenant); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	out := make([]flagView, 0)
	for _, f := range s.rt.Flags(tenant) {
		out = append(out, flagView{Key: f.Key, Name: f.Name, Enabled: f.Enabled, UpdatedAt: f.UpdatedAtMs})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"tenant": tenant, "flags": out})
}

type toggleReq struct {
	Tenant  string `json:"tenant"`
	Key     string `json:"key"`
	Enabled bool   `json:"enabled"`
}

func (s *Server) handleFlagToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req toggleReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := s.rt.TenantRules().Validate(req.Tenant); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Key == "" {
		http.Error(w, "key is required", http.StatusBadRequest)
		return
	}
	if err := s.rt.ToggleFlag(r.Context(), req.Tenant, req.Key, req.Enabled); err != nil {
		if errors.Is(err, storage.ErrFlagNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		s.logger.Error("flag toggle failed", logpkg.Str("tenant", req.Tenant), logpkg.Str("key", req.Key), logpkg.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFlagRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := s.rt.RefreshFlags(r.Context()); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
