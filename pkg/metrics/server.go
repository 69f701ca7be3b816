package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Server is the scrape endpoint, kept off the API listener.
type Server struct {
	http *http.Server
	addr net.Addr
}

// StartServer binds addr before returning, so a taken port fails startup
// instead of surfacing later in a log line.
func StartServer(addr string, m *Metrics) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())

	s := &Server{
		http: &http.Server{
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		addr: ln.Addr(),
	}
	go func() {
		slog.Info("metrics server listening", "addr", s.addr.String())
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "error", err)
		}
	}()
	return s, nil
}

func (s *Server) Addr() string { return s.addr.String() }

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
