package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
)

// Run is the CLI entrypoint used by cmd/idvault.
// It returns an error instead of calling os.Exit so deferred cleanup still runs.
func Run() error {
	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	if err := ValidateSecurityConfig(cfg); err != nil {
		log.Error("startup.security_policy", "err", err)
		return err
	}

	a, err := New(cfg, log)
	if err != nil {
		log.Error("startup.fail", "err", err)
		return fmt.Errorf("idvault startup: %w", err)
	}
	log.Info("startup.ok", startupAttrs(cfg)...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return a.Run(ctx)
}

// startupAttrs summarizes the effective runtime. Keys and DSNs are never included.
func startupAttrs(cfg Config) []any {
	store := "memory"
	if cfg.DatabaseURL != "" {
		store = "postgres"
	}
	cipher := string(cfg.Sealer.Algorithm)
	if cipher == "" {
		cipher = "default"
	}
	return []any{
		"store", store,
		"schema", cfg.DBSchema,
		"cipher", cipher,
		"field_key_set", cfg.Sealer.Key != "",
		"fingerprint_keyed", cfg.Sealer.FingerprintKey != "",
		"require_field_key", cfg.RequireFieldKey,
		"audit", cfg.AuditEnabled && cfg.DatabaseURL != "",
		"log_format", cfg.LogFormat,
	}
}
