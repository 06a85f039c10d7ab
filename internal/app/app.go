package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"autogate/internal/service/web"
	"autogate/internal/shared/logger"
	"autogate/internal/shared/types"
	"autogate/vpngate/scraper"
)

const shutdownTimeout = 10 * time.Second

// AppServer is the application's main struct.
type AppServer struct {
	cfg       *types.Config
	directory web.Directory
	server    *http.Server
	waitGroup sync.WaitGroup
	stopOnce  sync.Once
}

// New creates an AppServer backed by the live VPN Gate scraper.
func New(cfg *types.Config) *AppServer {
	return &AppServer{
		cfg:       cfg,
		directory: scraper.NewClient(cfg.UpstreamConf),
	}
}

// Start 启动 Web 服务但不阻塞。
func (s *AppServer) Start() error {
	logger.Info().
		Str("upstream", s.cfg.UpstreamConf.BaseURL).
		Int("port", s.cfg.WebConf.Port).
		Msg("Starting AutoGate...")

	srv, err := web.StartServer(&s.waitGroup, s.cfg, s.directory)
	if err != nil {
		return err
	}
	s.server = srv
	return nil
}

// Run is the server's entry point. It blocks until SIGINT/SIGTERM.
func (s *AppServer) Run() {
	if err := s.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Web server failed to start")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("Shutting down...")

	s.Stop()
	s.Wait()
}

// Wait blocks until the web server goroutine has exited.
func (s *AppServer) Wait() {
	s.waitGroup.Wait()
}

// Stop gracefully shuts down the server.
func (s *AppServer) Stop() {
	s.stopOnce.Do(func() {
		if s.server == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("Web server shutdown failed.")
		}
	})
}
