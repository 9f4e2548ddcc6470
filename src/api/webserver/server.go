package webserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server runs the API as a core.Module.
type Server struct {
	srv *http.Server
	log *zap.Logger
}

func NewServer(addr string, handler http.Handler, log *zap.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		log: log.Named("http"),
	}
}

func (s *Server) Name() string { return "http" }

// Start binds the listener before returning so address errors surface to the
// caller.
func (s *Server) Start(context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("http: listen %s: %w", s.srv.Addr, err)
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server stopped", zap.Error(err))
		}
	}()
	s.log.Info("devhub-cache API listening", zap.String("addr", ln.Addr().String()))
	return nil
}

func (s *Server) Stop(ctx context.Context) {
	if err := s.srv.Shutdown(ctx); err != nil {
		s.log.Warn("http shutdown", zap.Error(err))
	}
}
