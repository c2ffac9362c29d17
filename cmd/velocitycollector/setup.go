package main

import (
	"fmt"
	"os"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/velocitycollector/velocitycollector/internal/config"
	"github.com/velocitycollector/velocitycollector/internal/dcim"
	"github.com/velocitycollector/velocitycollector/internal/logging"
	"github.com/velocitycollector/velocitycollector/internal/metrics"
	"github.com/velocitycollector/velocitycollector/internal/sshdriver"
	"github.com/velocitycollector/velocitycollector/internal/store"
	"github.com/velocitycollector/velocitycollector/internal/template"
	"github.com/velocitycollector/velocitycollector/internal/vault"
)

// app bundles the long-lived dependencies every subcommand needs, opened
// once from the merged viper configuration.
type app struct {
	cfg       config.Config
	store     *store.Store
	devices   dcim.Repository
	templates template.Store
	vault     *vault.Vault
	metrics   *metrics.Metrics
	badgerDB  *badger.DB
}

// openApp loads config and opens the database, template cache, vault,
// and metrics registry shared by every subcommand. Callers must call
// close() when done.
func openApp() (*app, error) {
	cfg := config.Load()
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	s, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	var templates template.Store = store.NewTemplates(s)
	var badgerDB *badger.DB
	if cfg.TemplateCachePath != "" {
		opts := badger.DefaultOptions(cfg.TemplateCachePath).WithLoggingLevel(badger.ERROR)
		badgerDB, err = badger.Open(opts)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("open template cache: %w", err)
		}
		ttl := time.Duration(cfg.TemplateCacheTTLSeconds) * time.Second
		templates = template.NewCachedStore(templates, badgerDB, ttl)
	}

	v := vault.New(&vault.FileStore{Path: cfg.VaultPath})
	if password := os.Getenv(config.VaultPasswordEnvVar); password != "" {
		if ok, err := v.Unlock(password); err != nil {
			logging.With("error", err).Warn("vault unlock failed")
		} else if !ok {
			logging.L().Warn("vault password did not match; running without credential resolution")
		}
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	return &app{
		cfg:       cfg,
		store:     s,
		devices:   store.NewDCIM(s),
		templates: templates,
		vault:     v,
		metrics:   m,
		badgerDB:  badgerDB,
	}, nil
}

func (a *app) close() {
	if a.badgerDB != nil {
		_ = a.badgerDB.Close()
	}
	_ = a.store.Close()
}

func (a *app) timeouts() sshdriver.Timeouts {
	t := sshdriver.DefaultTimeouts()
	if a.cfg.DefaultConnectTimeoutSeconds > 0 {
		t.Connect = time.Duration(a.cfg.DefaultConnectTimeoutSeconds) * time.Second
	}
	if a.cfg.DefaultShellTimeoutSeconds > 0 {
		t.Execute = time.Duration(a.cfg.DefaultShellTimeoutSeconds) * time.Second
	}
	if a.cfg.DefaultExpectPromptTimeoutMs > 0 {
		t.PromptDetect = time.Duration(a.cfg.DefaultExpectPromptTimeoutMs) * time.Millisecond
	}
	if a.cfg.DefaultInterCommandMs > 0 {
		t.InterCommandTime = time.Duration(a.cfg.DefaultInterCommandMs) * time.Millisecond
	}
	return t
}
