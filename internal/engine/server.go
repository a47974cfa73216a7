package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/nocdem/dna-messenger-sub010/internal/api"
	"github.com/nocdem/dna-messenger-sub010/internal/profile"
	"go.uber.org/zap"
)

// Server manages the HTTP API lifecycle for a profile engine. It binds the
// profile's Unix domain socket; permissions make it private to the user.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	socketPath string
	cancelBase context.CancelFunc
	logger     *zap.Logger
}

// NewServer creates an HTTP server bound to the profile's Unix domain socket.
func NewServer(p Params, handler *api.Handler, logger *zap.Logger) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = profile.SocketPath(p.ProfileName)
	}

	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}

	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	// The base context reaches request contexts, so canceling it on Stop
	// also ends long-lived event streams.
	baseCtx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Handler:     handler.Router(),
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}

	return &Server{
		httpServer: srv,
		listener:   listener,
		socketPath: socketPath,
		cancelBase: cancel,
		logger:     logger,
	}, nil
}

// Start begins serving API requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("api server starting", zap.String("socket", s.socketPath))
	if err := s.httpServer.Serve(s.listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop performs a graceful shutdown and removes the socket file.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("api server stopping")
	s.cancelBase()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("api server shutdown", zap.Error(err))
	}
	_ = os.Remove(s.socketPath)
}
