package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"covercat/internal/config"
	"covercat/internal/ingest"
	"covercat/internal/lock"
	"covercat/internal/logging"
	"covercat/internal/notifications"
	"covercat/internal/records"
	"covercat/internal/review"
	"covercat/internal/stages"
	"covercat/internal/telemetry"
	"covercat/internal/workflow"
)

// app bundles the wired workflow components one command invocation uses.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	store       *records.Store
	engine      *workflow.Engine
	coordinator *workflow.Coordinator
	review      *review.Service
	ingester    *ingest.Ingester
	metrics     *telemetry.Metrics
	notifier    notifications.Service
	closeLock   func() error
}

type commandContext struct {
	configFlag *string

	// clients overrides the remote collaborators handed to the stages.
	clients func(*config.Config) stages.Clients

	configOnce sync.Once
	config     *config.Config
	configErr  error

	app *app
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		clients:    stages.NewClients,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// ensureApp opens the store and wires the engine on first use.
func (c *commandContext) ensureApp(ctx context.Context) (*app, error) {
	if c.app != nil {
		return c.app, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	registry, err := stages.Build(cfg, c.clients(cfg))
	if err != nil {
		return nil, fmt.Errorf("build stages: %w", err)
	}
	locker, closeLock, err := lock.FromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, err := records.Open(cfg)
	if err != nil {
		_ = closeLock()
		return nil, fmt.Errorf("open record store: %w", err)
	}

	metrics := telemetry.New()
	notifier := notifications.NewService(cfg)
	engine := workflow.NewEngine(cfg, store, registry, logger,
		workflow.WithLocker(locker),
		workflow.WithMetrics(metrics),
		workflow.WithNotifier(notifier),
	)
	c.app = &app{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		engine:      engine,
		coordinator: workflow.NewCoordinator(engine, store, logger),
		review: review.NewService(engine, store, logger,
			review.WithMetrics(metrics),
			review.WithSnapshotLimit(cfg.Review.SnapshotLimit),
		),
		ingester:  ingest.New(store, registry.First(), logger),
		metrics:   metrics,
		notifier:  notifier,
		closeLock: closeLock,
	}
	return c.app, nil
}

// withApp runs fn against the wired components and closes the store after.
func (c *commandContext) withApp(cmd *cobra.Command, fn func(*app) error) error {
	a, err := c.ensureApp(cmd.Context())
	if err != nil {
		return err
	}
	err = fn(a)
	if closeErr := c.close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

func (c *commandContext) close() error {
	if c.app == nil {
		return nil
	}
	a := c.app
	c.app = nil
	return errors.Join(a.store.Close(), a.closeLock())
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
