// Package api serves the voicedesk HTTP API.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/zulandar/voicedesk/internal/logging"
	"github.com/zulandar/voicedesk/internal/notify"
	"github.com/zulandar/voicedesk/internal/provider"
	"github.com/zulandar/voicedesk/internal/storage"
)

const (
	defaultPort         = 5000
	defaultPollInterval = 2 * time.Second
	heartbeatInterval   = 15 * time.Second
	notifyTimeout       = 10 * time.Second
	shutdownTimeout     = 10 * time.Second
)

// StartOpts holds configuration for the API server.
type StartOpts struct {
	Store          storage.Storage
	Credentials    provider.Credentials // nil behaves as an unconfigured API key
	Notifier       notify.Notifier      // nil disables notifications
	Logger         zerolog.Logger
	Port           int
	DefaultAgentID string
	PollInterval   time.Duration // SSE poll cadence
}

// server carries the dependencies shared by every handler.
type server struct {
	store          storage.Storage
	creds          provider.Credentials
	notifier       notify.Notifier
	log            zerolog.Logger
	defaultAgentID string
	poll           time.Duration
	heartbeat      time.Duration
	router         *gin.Engine

	// streams is cancelled on shutdown so open SSE connections close.
	streams context.Context

	// background tracks in-flight notifications so shutdown can wait for them.
	background sync.WaitGroup
}

func newServer(opts StartOpts) (*server, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("api: store is required")
	}
	s := &server{
		store:          opts.Store,
		creds:          opts.Credentials,
		notifier:       opts.Notifier,
		log:            opts.Logger,
		defaultAgentID: opts.DefaultAgentID,
		poll:           opts.PollInterval,
		heartbeat:      heartbeatInterval,
		streams:        context.Background(),
	}
	if s.creds == nil {
		s.creds = provider.NewClient(provider.ClientOpts{})
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	if s.poll <= 0 {
		s.poll = defaultPollInterval
	}

	useFieldJSONNames()

	router := gin.New()
	router.Use(gin.CustomRecovery(func(c *gin.Context, rec any) {
		s.log.Error().Interface("panic", rec).Str("path", c.Request.URL.Path).Msg("handler panic")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
	}))
	router.Use(logging.GinMiddleware(s.log))
	registerRoutes(router, s)
	s.router = router
	return s, nil
}

// Handler returns an http.Handler serving the API without starting a listener.
func Handler(opts StartOpts) (http.Handler, error) {
	s, err := newServer(opts)
	if err != nil {
		return nil, err
	}
	return s.router, nil
}

// Start launches the API HTTP server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Port <= 0 {
		opts.Port = defaultPort
	}

	gin.SetMode(gin.ReleaseMode)
	s, err := newServer(opts)
	if err != nil {
		return err
	}

	streams, cancelStreams := context.WithCancel(context.Background())
	defer cancelStreams()
	s.streams = streams

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(cancelStreams)

	// Graceful shutdown on context cancellation.
	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		shutdownErr <- srv.Shutdown(sctx)
	}()

	s.log.Info().Int("port", opts.Port).Str("storage", s.store.Backend()).Msg("api listening")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: %w", err)
	}
	err = <-shutdownErr
	s.background.Wait()
	if err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	s.log.Info().Msg("api stopped")
	return nil
}
