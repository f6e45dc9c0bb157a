package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/mackeh/aegismask/internal/audit"
	"github.com/mackeh/aegismask/internal/config"
	"github.com/mackeh/aegismask/internal/logging"
	"github.com/mackeh/aegismask/internal/moderation"
	"github.com/mackeh/aegismask/internal/notifications"
	"github.com/mackeh/aegismask/internal/policy"
	"github.com/mackeh/aegismask/internal/secrets"
	"github.com/mackeh/aegismask/internal/telemetry"
	"github.com/mackeh/aegismask/internal/wordlist"
)

// app is everything a moderation command needs, built from configuration.
type app struct {
	cfg      *config.Config
	logger   *log.Logger
	svc      *moderation.Service
	engine   *policy.Engine
	notifier *notifications.Dispatcher
	closers  []func() error
}

type appOptions struct {
	Publisher moderation.Publisher
	// JSONLogs switches the console logger to JSON, for servers.
	JSONLogs bool
	// NoAudit skips the audit log even when it is enabled.
	NoAudit bool
}

func loadConfig() (*config.Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

func configPath() (string, error) {
	if cfgFile != "" {
		return config.ExpandPath(cfgFile), nil
	}
	dir, err := config.DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}

	logOpts := logging.Options{Level: cfg.Logging.Level, JSON: opts.JSONLogs}
	if cfg.Logging.File != "" {
		logger, closer, err := logging.NewFile(cfg.Logging.File, logOpts)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		a.logger = logger
		a.closers = append(a.closers, closer.Close)
	} else {
		a.logger = logging.New(logOpts)
	}
	logging.SetDefault(a.logger)

	if err := a.setupTelemetry(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.engine, err = policy.LoadOrDefault(ctx, cfg.Policy.Path)
	if err != nil {
		a.Close()
		return nil, err
	}

	var auditLog *audit.Logger
	if cfg.Audit.Enabled && !opts.NoAudit {
		auditLog, err = audit.NewLogger(cfg.Audit.Path)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, auditLog.Close)
	}

	a.notifier = notifications.NewDispatcher(cfg.Notifications, a.logger)

	a.svc = moderation.New(moderation.Options{
		Filter:      cfg.Filter.Options(),
		DefaultList: cfg.DefaultList,
		Thresholds: policy.Thresholds{
			Review: cfg.Policy.ReviewThreshold,
			Deny:   cfg.Policy.DenyThreshold,
		},
		Policy:    a.engine,
		Audit:     auditLog,
		Notifier:  a.notifier,
		Publisher: opts.Publisher,
		Logger:    a.logger,
		Load:      loadOptions(cfg),
		CacheSize: cfg.Server.CacheSize,
	})
	if err := a.svc.LoadLists(cfg.Lists); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func loadOptions(cfg *config.Config) wordlist.LoadOptions {
	return wordlist.LoadOptions{
		Strict:    cfg.InvalidKeywords == config.InvalidReject,
		Decrypter: secrets.NewManager(cfg.Secrets.Dir),
	}
}

func (a *app) setupTelemetry(ctx context.Context) error {
	t := a.cfg.Telemetry
	enabled := t.Enabled && t.Exporter != "none"

	var w io.Writer
	if enabled {
		path := t.TracePath
		if path == "" {
			path = filepath.Join(filepath.Dir(a.cfg.Policy.Path), "traces.json")
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			// Tracing is best effort; moderation still works without it.
			a.logger.Warn("tracing disabled", "err", err)
			enabled = false
		} else {
			w = f
			a.closers = append(a.closers, f.Close)
		}
	}

	shutdown, err := telemetry.Setup(ctx, "aegismask", version, enabled, w)
	if err != nil {
		return err
	}
	// Closers run in reverse, so spans flush before the trace file closes.
	a.closers = append(a.closers, func() error { return shutdown(context.Background()) })
	return nil
}

// Close waits for pending notifications, then releases resources in
// reverse order of acquisition.
func (a *app) Close() error {
	a.notifier.Wait()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
