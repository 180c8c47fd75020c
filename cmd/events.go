/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/authkeep/authserver/config"
	"github.com/authkeep/authserver/internal/mq"
	"github.com/authkeep/authserver/types"
	"github.com/spf13/cobra"
)

// eventsCmd groups commands that work with account events.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect account events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Log account.registered events as they arrive",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Parse()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		switch cfg.MQ.Backend {
		case config.MQBackendNone:
			return errors.New("MQ_BACKEND is not set")
		case config.MQBackendMemory:
			return errors.New("the memory backend is only visible inside the server process")
		}
		if err := cfg.MQ.Validate(); err != nil {
			return err
		}
		logger := newLogger(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		broker, err := mq.NewFromConfig(ctx, cfg.MQ)
		if err != nil {
			return fmt.Errorf("init message backend: %w", err)
		}
		defer broker.Close()

		logger.Info("waiting for events", slog.String("channel", mq.ChannelAccountRegistered))
		err = broker.ConsumeAccountRegistered(ctx, func(ctx context.Context, event types.AccountRegistered) error {
			logger.Info("account registered",
				slog.String("account_id", event.ID),
				slog.String("username", event.Username),
				slog.Time("created_at", event.CreatedAt.Truncate(time.Millisecond)))
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
