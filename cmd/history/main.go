// Command history prints the stored conversation of one session as JSON,
// reading from the same backend the relay is configured with.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"chatrelay/config"
	"chatrelay/services"
)

func main() {
	session := flag.String("session", "", "session identity to print")
	window := flag.Int("window", 0, "only print the most recent N turns (0 = all)")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	if err := run(logger, *session, *window); err != nil {
		logger.Error().Err(err).Str("session", *session).Msg("history dump failed")
		os.Exit(1)
	}
}

func run(logger zerolog.Logger, session string, window int) error {
	if session == "" {
		return errors.New("-session is required")
	}

	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	kv, err := services.NewKVStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("history store %q init: %w", cfg.Store, err)
	}
	defer kv.Close()

	history := services.NewHistoryStore(kv, cfg.KeyPrefix, services.SystemClock)
	turns, err := history.Get(ctx, session, window)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(turns); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	logger.Info().Str("session", session).Int("turns", len(turns)).Msg("history printed")
	return nil
}
