package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/trustgate/trustgate/internal/audit"
	"github.com/trustgate/trustgate/internal/config"
	"github.com/trustgate/trustgate/internal/csrf"
	"github.com/trustgate/trustgate/internal/server"
	"github.com/trustgate/trustgate/internal/service"
)

const banner = `
 _____              _    ____       _
|_   _| __ _   _ __| |_ / ___| __ _| |_ ___
  | || '__| | | / __| __| |  _ / _' | __/ _ \
  | || |  | |_| \__ \ |_| |_| | (_| | ||  __/
  |_||_|   \__,_|___/\__|\____|\__,_|\__\___|
`

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the TrustGate HTTP server",
		Long:  "Start the HTTP server exposing the CSRF token endpoint and the key-administration and audit-query APIs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(host, port, dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(host string, port int, dev bool) error {
	fmt.Print(banner)
	fmt.Println()

	logLevel := slog.LevelInfo
	if dev {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	cfg := config.Load(viper.GetViper())
	cfg.Host = host
	cfg.Port = port
	if cfg.DataDir == "" {
		cfg.DataDir = resolveDataDir()
	}

	if cfg.CSRFSecret == "" {
		if cfg.Production() {
			return fmt.Errorf("csrf.secret must be set in production")
		}
		cfg.CSRFSecret = "trustgate-dev-secret-change-me"
		logger.Warn("no csrf.secret configured, using development default")
	}

	// 1. Open the key/audit store.
	store, err := config.NewStore(cfg.StoreDriver, cfg.StoreDSN, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	logger.Info("store opened", "driver", cfg.StoreDriver, "data_dir", cfg.DataDir)

	// 2. Audit sink and retention.
	sink := audit.NewAsyncSink(store, logger, cfg.AuditBuffer, cfg.AuditWriteTimeout)
	defer sink.Close()

	retentionCtx, stopRetention := context.WithCancel(context.Background())
	defer stopRetention()
	go audit.RunRetention(retentionCtx, store, cfg.AuditRetention, logger)

	// 3. CSRF services.
	tokens := csrf.NewTokenService(cfg.CSRFSecret, cfg.CSRFTokenTTL)
	origins := csrf.NewOriginPolicy(cfg.AllowedOrigins, cfg.TrustedParentDomain, cfg.Production())

	// 4. API-key gate.
	authSvc := service.NewAuthService(store, sink, logger)

	// 5. First-run hint.
	keys, err := store.ListKeys(context.Background())
	if err != nil {
		logger.Warn("failed to check for keys", "error", err)
	} else if len(keys) == 0 {
		logger.Warn("no API keys configured - run: trustgate key create")
	}

	srv := server.New(cfg, store, authSvc, tokens, origins, sink, logger)

	fmt.Printf("→ TrustGate\n")
	fmt.Printf("→ Listening on http://%s:%d\n", cfg.Host, cfg.Port)
	fmt.Printf("→ Environment: %s\n", cfg.Environment)
	fmt.Printf("→ CSRF token:  http://%s:%d/api/v1/csrf-token\n", cfg.Host, cfg.Port)
	fmt.Printf("→ OpenAPI:     http://%s:%d/openapi.json\n", cfg.Host, cfg.Port)
	fmt.Printf("→ Metrics:     http://%s:%d/metrics\n", cfg.Host, cfg.Port)
	fmt.Println()

	return srv.ListenAndServe()
}
