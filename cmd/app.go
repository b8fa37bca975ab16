package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/KaramelBytes/veiltext-cli/internal/detector"
	"github.com/KaramelBytes/veiltext-cli/internal/license"
	"github.com/KaramelBytes/veiltext-cli/internal/obfuscate"
	"github.com/KaramelBytes/veiltext-cli/internal/observability"
	"github.com/KaramelBytes/veiltext-cli/internal/persist"
	"github.com/KaramelBytes/veiltext-cli/internal/review"
	"github.com/KaramelBytes/veiltext-cli/internal/session"
	"github.com/KaramelBytes/veiltext-cli/internal/workspace"
	"github.com/fatih/color"
	"go.uber.org/zap"
)

// app is everything one command invocation needs.
type app struct {
	kv     persist.KV
	ws     *workspace.Workspace
	logger *zap.Logger
}

func backendConfig() persist.BackendConfig {
	return persist.BackendConfig{
		Dir:         cfg.DataDir,
		RedisURL:    cfg.RedisURL,
		RedisPrefix: cfg.RedisPrefix,
		SQLitePath:  cfg.SQLitePath,
	}
}

func newLogger() *zap.Logger {
	return observability.NewLogger(observability.LogOptions{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
		Color:  !color.NoColor,
	}, nil)
}

func newScorer() detector.Scorer {
	client := detector.NewClient(
		cfg.DetectorURL,
		cfg.APIKey,
		time.Duration(cfg.HTTPTimeoutSec)*time.Second,
		cfg.RetryMaxAttempts,
		time.Duration(cfg.RetryBaseDelayMs)*time.Millisecond,
		time.Duration(cfg.RetryMaxDelayMs)*time.Millisecond,
	)
	return detector.NewCachedScorer(client, time.Duration(cfg.ScoreCacheSecs)*time.Second)
}

// openApp loads config, opens the storage backend and rehydrates the
// document store.
func openApp(ctx context.Context) (*app, error) {
	if _, err := ensureConfig(); err != nil {
		return nil, err
	}
	logger := newLogger()
	kv, err := persist.OpenBackend(cfg.Storage, backendConfig())
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage, err)
	}

	opts := []session.Option{
		session.WithPersister(persist.NewSnapshots(kv)),
		session.WithLogger(logger.Named("session")),
	}
	if cfg.LegacyWordCount {
		opts = append(opts, session.WithLegacyWordCount())
	}
	store, err := session.Open(ctx, opts...)
	if err != nil {
		_ = kv.Close()
		return nil, err
	}
	ent, err := license.Load(ctx, kv)
	if err != nil {
		_ = kv.Close()
		return nil, err
	}

	coord := review.New(store, newScorer(),
		review.WithLogger(logger.Named("review")),
		review.WithThreshold(cfg.HighScore))
	engine := obfuscate.NewEngine(nil, obfuscate.WithProbability(cfg.Probability))
	ws := workspace.New(store, engine, coord, ent, workspace.WithLogger(logger.Named("workspace")))
	return &app{kv: kv, ws: ws, logger: logger}, nil
}

// Close drains scoring requests so their results are persisted, then
// releases the backend.
func (a *app) Close() {
	a.ws.Wait()
	if err := a.kv.Close(); err != nil {
		a.logger.Warn("close storage", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// docID resolves an optional id argument to the active document.
func (a *app) docID(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	id := a.ws.Store.ActiveID()
	if id == "" {
		return "", fmt.Errorf("no open documents; create one with 'veiltext new'")
	}
	return id, nil
}

func withApp(fn func(ctx context.Context, a *app) error) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
