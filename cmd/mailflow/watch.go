package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	mfnats "github.com/Strob0t/mailflow/internal/adapter/nats"
	"github.com/Strob0t/mailflow/internal/logger"
)

var watchFlags struct {
	subject string
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print pipeline events from NATS as they arrive",
	Long: `Subscribes to the mailflow event stream and prints every new event, one per
line, prefixed with its subject. Useful for following human-review requests
and routing failures. Requires nats.url (NATS_URL).`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchFlags.subject, "subject", "mail.>", "subject filter")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required (set NATS_URL)")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	q, err := mfnats.Connect(ctx, cfg.NATS.URL, "mailflow-watch")
	if err != nil {
		return err
	}
	defer func() { _ = q.Close() }()

	out := cmd.OutOrStdout()
	var mu sync.Mutex
	cancel, err := q.Subscribe(ctx, watchFlags.subject, func(ctx context.Context, subject string, data []byte) error {
		mu.Lock()
		defer mu.Unlock()
		return writeEvent(out, subject, logger.RequestID(ctx), data)
	})
	if err != nil {
		return err
	}
	defer cancel()

	<-ctx.Done()
	return nil
}

func writeEvent(w io.Writer, subject, requestID string, data []byte) error {
	if requestID != "" {
		_, err := fmt.Fprintf(w, "%s [%s] %s\n", subject, requestID, data)
		return err
	}
	_, err := fmt.Fprintf(w, "%s %s\n", subject, data)
	return err
}
