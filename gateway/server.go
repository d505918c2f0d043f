// Package gateway exposes chat sessions over websockets. Each connection owns
// exactly one session.Session; client frames map onto session calls and every
// session update is pushed back as an "update" frame.
package gateway

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/alumnihub/chat/chat/session"
	"github.com/alumnihub/chat/errors"
	"github.com/alumnihub/chat/structures"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	sessions *session.Service
	cfg      Config
	router   *mux.Router
	upgrader websocket.Upgrader
	metrics  *metrics

	mtx     sync.Mutex
	closing bool
	conns   map[*conn]struct{}
	wg      sync.WaitGroup
}

func New(sessions *session.Service, cfg Config) *Server {
	cfg = cfg.fill()
	s := &Server{
		sessions: sessions,
		cfg:      cfg,
		router:   mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
		metrics: newMetrics(cfg.Registry),
		conns:   map[*conn]struct{}{},
	}

	s.router.HandleFunc("/ws", s.handleWebsocket).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Connections reports the number of open websocket sessions.
func (s *Server) Connections() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return len(s.conns)
}

// Close stops accepting sessions, closes every open one and waits for their
// handlers to return or ctx to expire.
func (s *Server) Close(ctx context.Context) error {
	s.mtx.Lock()
	s.closing = true
	open := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		open = append(open, c)
	}
	s.mtx.Unlock()

	for _, c := range open {
		c.close(websocket.CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mtx.Lock()
	closing := s.closing
	s.mtx.Unlock()
	if closing {
		http.Error(w, errors.ErrGatewayClosed.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if !s.track() {
		http.Error(w, errors.ErrGatewayClosed.Error(), http.StatusServiceUnavailable)
		return
	}
	defer s.wg.Done()

	token := bearerToken(r)
	if token == "" {
		s.metrics.attaches.WithLabelValues("unauthorized").Inc()
		http.Error(w, errors.ErrMissingToken.Error(), http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	opts := session.AttachOptions{
		DeviceType: q.Get("device"),
		UserAgent:  r.UserAgent(),
		Filter:     structures.MessageFilter{ThreadID: q.Get("thread_id")},
	}
	if q.Get("sort") == string(structures.SortByReactionCount) {
		opts.Sort.Field = structures.SortByReactionCount
	}
	if q.Get("order") == "asc" {
		opts.Sort.Order = structures.SortAsc
	}

	sess, err := s.sessions.AttachToken(r.Context(), token, opts)
	if err != nil {
		s.metrics.attaches.WithLabelValues(errorKind(err)).Inc()
		s.cfg.Logger.WithError(err).Debug("gateway, attach rejected")
		http.Error(w, err.Error(), attachStatus(err))
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.metrics.attaches.WithLabelValues("upgrade_failed").Inc()
		s.cfg.Logger.WithError(err).Warn("gateway, websocket upgrade failed")
		_ = sess.Close(context.Background())
		return
	}
	s.metrics.attaches.WithLabelValues("ok").Inc()

	c := newConn(s, ws, sess)
	s.register(c, true)
	defer s.register(c, false)
	c.serve()
}

func (s *Server) track() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.closing {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) register(c *conn, open bool) {
	s.mtx.Lock()
	if open {
		s.conns[c] = struct{}{}
		s.metrics.connections.Inc()
	} else {
		delete(s.conns, c)
		s.metrics.connections.Dec()
	}
	s.mtx.Unlock()
}

func bearerToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func attachStatus(err error) int {
	switch errors.Kind(err) {
	case errors.ErrUnauthorized:
		if errors.Is(err, errors.ErrJwtTokenInvalid) || errors.Is(err, errors.ErrJwtTokenExpired) {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case errors.ErrValidationFailed:
		return http.StatusBadRequest
	case errors.ErrNotFound:
		return http.StatusNotFound
	case errors.ErrTransientStore:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
