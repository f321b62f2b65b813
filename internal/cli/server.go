package cli

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/trinitydb/trinity/internal/server"
)

var (
	serverListen      string
	serverLogLevel    string
	serverLogFormat   string
	serverTLSCert     string
	serverTLSKey      string
	serverWebhookURLs string
	serverTokensFile  string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the Trinity HTTP server",
	Long: `Serve the merge engine of the current repository over HTTP.

Authentication is configured through a JSON token file mapping bearer
tokens to caller identities. Without one, callers may identify
themselves via the X-Trinity-Caller header.

Examples:
  trinity server
  trinity server --listen 0.0.0.0:8730 --tokens-file tokens.json
  trinity server --tls-cert server.crt --tls-key server.key`,
	Run: runServer,
}

func init() {
	f := serverCmd.Flags()
	f.StringVar(&serverListen, "listen", envOrDefault("TRINITY_LISTEN", "127.0.0.1:8730"), "Listen address (host:port)")
	f.StringVar(&serverLogLevel, "log-level", envOrDefault("TRINITY_LOG_LEVEL", "info"), "Log level (debug|info|warn|error)")
	f.StringVar(&serverLogFormat, "log-format", envOrDefault("TRINITY_LOG_FORMAT", "json"), "Log format (json|text)")
	f.StringVar(&serverTLSCert, "tls-cert", os.Getenv("TRINITY_TLS_CERT"), "TLS certificate file")
	f.StringVar(&serverTLSKey, "tls-key", os.Getenv("TRINITY_TLS_KEY"), "TLS key file")
	f.StringVar(&serverWebhookURLs, "webhook-urls", os.Getenv("TRINITY_WEBHOOK_URLS"), "Comma-separated webhook URLs to notify on merge events")
	f.StringVar(&serverTokensFile, "tokens-file", os.Getenv("TRINITY_TOKENS_FILE"), "JSON file mapping bearer tokens to caller identities")
}

func runServer(_ *cobra.Command, _ []string) {
	logger := newServerLogger(serverLogLevel, serverLogFormat)
	slog.SetDefault(logger)

	c := initFullContext()
	defer c.Close()

	cfg := server.DefaultConfig()
	cfg.CacheTTL = c.Config.CacheTTL()

	if serverTokensFile != "" {
		tokens, err := loadTokens(serverTokensFile)
		if err != nil {
			logger.Error("failed to load token file", "error", err, "path", serverTokensFile)
			os.Exit(1)
		}
		cfg.Tokens = tokens
		logger.Info("token auth enabled", "tokens", len(tokens))
	}

	if urls := splitURLs(serverWebhookURLs); len(urls) > 0 {
		cfg.Webhooks = &server.WebhookConfig{URLs: urls}
		logger.Info("webhooks configured", "count", len(urls))
	}

	h, cleanup, err := server.Handler(c.Engine, c.Store, cfg, logger)
	if err != nil {
		logger.Error("failed to build handler", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              serverListen,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return context.Background() },
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting trinity server", "listen", serverListen, "repo", c.Config.TrinityPath())
		var err error
		if serverTLSCert != "" && serverTLSKey != "" {
			err = srv.ListenAndServeTLS(serverTLSCert, serverTLSKey)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// newServerLogger builds a slog logger from the level and format flags.
func newServerLogger(levelName, format string) *slog.Logger {
	var level slog.Level
	switch levelName {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// loadTokens reads a JSON object mapping bearer tokens to caller names.
func loadTokens(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tokens map[string]string
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

// splitURLs splits a comma-separated URL list, dropping empty entries.
func splitURLs(s string) []string {
	var urls []string
	for _, u := range strings.Split(s, ",") {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

// envOrDefault returns the value of the environment variable key, or defaultVal if unset.
func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
