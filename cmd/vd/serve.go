package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/voicedesk/internal/api"
	"github.com/zulandar/voicedesk/internal/config"
	"github.com/zulandar/voicedesk/internal/logging"
	"github.com/zulandar/voicedesk/internal/notify"
	"github.com/zulandar/voicedesk/internal/provider"
	"github.com/zulandar/voicedesk/internal/reaper"
	"github.com/zulandar/voicedesk/internal/storage"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long:  "Serves the voicedesk API until interrupted. The stale conversation reaper runs alongside when enabled.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runServe(ctx, cfg)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVarP(&port, "port", "p", 5000, "port to listen on (overrides server.port)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}

	store, err := storage.Open(cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	notifier, err := notify.FromConfig(cfg.Notify, logging.Component(log, "notify"))
	if err != nil {
		return err
	}

	if cfg.Provider.APIKey == "" {
		log.Warn().Msg("no provider API key configured; credential endpoints will return 500")
	}
	creds := provider.NewClient(provider.ClientOpts{
		BaseURL: cfg.Provider.BaseURL,
		APIKey:  cfg.Provider.APIKey,
		Timeout: cfg.Provider.Timeout,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	if cfg.Reaper.Enabled {
		r, err := reaper.New(reaper.Opts{
			Store:    store,
			Notifier: notifier,
			Logger:   logging.Component(log, "reaper"),
			Schedule: cfg.Reaper.Schedule,
			MaxAge:   cfg.Reaper.MaxAge,
		})
		if err != nil {
			return err
		}
		go func() {
			defer close(done)
			r.Run(ctx)
		}()
	} else {
		close(done)
	}

	err = api.Start(ctx, api.StartOpts{
		Store:          store,
		Credentials:    creds,
		Notifier:       notifier,
		Logger:         logging.Component(log, "api"),
		Port:           cfg.Server.Port,
		DefaultAgentID: cfg.Provider.DefaultAgentID,
		PollInterval:   cfg.Server.SSEPollInterval,
	})
	// Stop the reaper before the deferred store.Close runs.
	cancel()
	<-done
	if err != nil {
		log.Error().Err(err).Msg("serve failed")
	}
	return err
}
