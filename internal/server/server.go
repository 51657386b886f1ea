package server

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Server owns the daemon's *http.Server lifecycle: Run blocks serving, and
// Shutdown drains in-flight requests.
type Server struct {
	httpServer *http.Server
}

// HTTP tuning. The websocket endpoint takes over its connection on upgrade,
// so these bound only regular API requests.
const (
	maxHeaderBytes    = 1 << 20
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
)

// Run starts listening on the given port with the given handler. The port
// may be "8080" or ":8080".
func (s *Server) Run(port string, handler http.Handler) error {
	s.httpServer = &http.Server{
		Addr:              normalizeAddr(port),
		Handler:           handler,
		MaxHeaderBytes:    maxHeaderBytes,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the server gracefully. Safe to call before Run.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func normalizeAddr(port string) string {
	if port == "" || strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}
