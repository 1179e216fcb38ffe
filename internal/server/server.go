package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quic-go/quic-go/http3"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/viewcone/internal/config"
	"github.com/zeusync/viewcone/internal/core/observability/log"
	"github.com/zeusync/viewcone/internal/core/visibility"
	"github.com/zeusync/viewcone/internal/query"
)

// Querier is the query surface the server exposes.
type Querier interface {
	VisibleObjects(ctx context.Context, viewer visibility.ViewerState) ([]visibility.Result, error)
	Ping(ctx context.Context) error
	Stats() query.Stats
}

// Server serves the visibleObjects query over HTTP, websocket and optionally HTTP/3.
type Server struct {
	service Querier
	config  config.Config
	logger  log.Log

	handler  http.Handler
	upgrader websocket.Upgrader
	limiter  *clientLimiter

	httpServer  *http.Server
	http3Server *http3.Server
	listener    net.Listener

	group  *errgroup.Group
	cancel context.CancelFunc

	running int32 // atomic bool
	closed  int32 // atomic bool

	sockets     sync.Map // *websocket.Conn -> struct{}
	connections atomic.Int64
}

func NewServer(cfg config.Config, service Querier, logger log.Log) *Server {
	s := &Server{
		service: service,
		config:  cfg,
		logger:  logger.With(log.String("component", "server")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.Server.WebSocket.ReadBufferSize,
			WriteBufferSize: cfg.Server.WebSocket.WriteBufferSize,
		},
	}
	if cfg.RateLimit.Enabled {
		s.limiter = newClientLimiter(cfg.RateLimit)
	}
	if cfg.HTTP3.Enabled {
		s.http3Server = &http3.Server{Addr: cfg.HTTP3.ListenAddr}
	}
	s.handler = s.routes()
	if s.http3Server != nil {
		s.http3Server.Handler = s.handler
	}

	s.logger.Info("Server created",
		log.String("listen_addr", cfg.Server.ListenAddr),
		log.Bool("websocket", cfg.Server.WebSocket.Enabled),
		log.Bool("http3", cfg.HTTP3.Enabled),
		log.Bool("auth", cfg.Auth.Token != ""),
		log.Bool("rate_limit", cfg.RateLimit.Enabled))

	return s
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the bound TCP address once started.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start binds the listeners and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	if atomic.LoadInt32(&s.closed) == 1 {
		return ErrServerClosed
	}
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return ErrServerAlreadyRunning
	}

	s.logger.Info("Starting server")

	listener, err := net.Listen("tcp", s.config.Server.ListenAddr)
	if err != nil {
		atomic.StoreInt32(&s.running, 0)
		s.logger.Error("Failed to create listener", log.Error(err))
		return err
	}
	s.listener = listener

	s.httpServer = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}
	s.httpServer.RegisterOnShutdown(s.closeWebSockets)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.group, runCtx = errgroup.WithContext(runCtx)

	s.group.Go(func() error {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server failed", log.Error(err))
			return err
		}
		return nil
	})

	if s.http3Server != nil {
		s.group.Go(func() error {
			err := s.http3Server.ListenAndServeTLS(s.config.HTTP3.CertFile, s.config.HTTP3.KeyFile)
			if err != nil && !errors.Is(err, http.ErrServerClosed) && atomic.LoadInt32(&s.running) == 1 {
				s.logger.Error("HTTP/3 server failed", log.Error(err))
				return err
			}
			return nil
		})
		s.logger.Info("HTTP/3 listening", log.String("addr", s.config.HTTP3.ListenAddr))
	}

	if s.limiter != nil {
		s.group.Go(func() error {
			s.limiter.janitor(runCtx, s.config.RateLimit.IdleTTL)
			return nil
		})
	}

	s.logger.Info("Server listening", log.String("addr", listener.Addr().String()))

	return nil
}

// Stop drains in-flight requests within the shutdown timeout.
func (s *Server) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return ErrServerNotRunning
	}

	s.logger.Info("Stopping server")

	ctx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.http3Server != nil {
		if err := s.http3Server.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.cancel()
	if err := s.group.Wait(); err != nil {
		errs = append(errs, err)
	}

	s.logger.Info("Server stopped", log.Int64("open_websockets", s.connections.Load()))

	return errors.Join(errs...)
}

// Close stops the server if needed and prevents restarts.
func (s *Server) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	if atomic.LoadInt32(&s.running) == 1 {
		return s.Stop(context.Background())
	}
	return nil
}

// Run starts the server and stops it once ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Stop(context.Background())
}

// retryAfterSeconds is the Retry-After value for transient failures.
func (s *Server) retryAfterSeconds() string {
	secs := int(s.config.Server.RetryAfter / time.Second)
	return strconv.Itoa(max(secs, 1))
}
