// Command trinity-server serves a Trinity repository's merge engine over
// HTTP without the surrounding CLI.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/trinitydb/trinity/internal/audit"
	"github.com/trinitydb/trinity/internal/config"
	"github.com/trinitydb/trinity/internal/engine"
	"github.com/trinitydb/trinity/internal/lock"
	"github.com/trinitydb/trinity/internal/server"
	"github.com/trinitydb/trinity/internal/store"
)

func main() {
	repoDir := flag.String("repo", envOrDefault("TRINITY_REPO", "."), "Directory containing the .trinity repository")
	listen := flag.String("listen", envOrDefault("TRINITY_LISTEN", "0.0.0.0:8730"), "Listen address")
	logLevel := flag.String("log-level", envOrDefault("TRINITY_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", envOrDefault("TRINITY_LOG_FORMAT", "json"), "Log format (json, text)")
	tlsCert := flag.String("tls-cert", os.Getenv("TRINITY_TLS_CERT"), "TLS certificate file")
	tlsKey := flag.String("tls-key", os.Getenv("TRINITY_TLS_KEY"), "TLS key file")
	webhookURLs := flag.String("webhook-urls", os.Getenv("TRINITY_WEBHOOK_URLS"), "Comma-separated webhook URLs to notify on merge events")
	tokensFile := flag.String("tokens-file", os.Getenv("TRINITY_TOKENS_FILE"), "JSON file mapping bearer tokens to caller identities")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if *logFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	cfg, err := config.LoadFrom(filepath.Join(*repoDir, config.TrinityDir))
	if err != nil {
		logger.Error("failed to load repository config", "error", err, "repo", *repoDir)
		os.Exit(1)
	}

	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Initialize(); err != nil {
		logger.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}

	sink, err := audit.NewBoltSink(cfg.AuditPath())
	if err != nil {
		logger.Error("failed to open audit log", "error", err)
		os.Exit(1)
	}
	defer sink.Close()

	locks := lock.NewCoordinator(st, cfg.LeaseTTL())
	defer locks.Close()

	svc := engine.New(engine.Options{
		Store:       st,
		Locks:       locks,
		Audit:       sink,
		Logger:      logger,
		LockTimeout: cfg.LockTimeout(),
	})

	srvCfg := server.DefaultConfig()
	srvCfg.CacheTTL = cfg.CacheTTL()

	if *tokensFile != "" {
		data, err := os.ReadFile(*tokensFile)
		if err != nil {
			logger.Error("failed to read token file", "error", err, "path", *tokensFile)
			os.Exit(1)
		}
		var tokens map[string]string
		if err := json.Unmarshal(data, &tokens); err != nil {
			logger.Error("failed to parse token file", "error", err, "path", *tokensFile)
			os.Exit(1)
		}
		srvCfg.Tokens = tokens
		logger.Info("token auth enabled", "tokens", len(tokens))
	}

	if *webhookURLs != "" {
		var urls []string
		for _, u := range strings.Split(*webhookURLs, ",") {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
		if len(urls) > 0 {
			srvCfg.Webhooks = &server.WebhookConfig{URLs: urls}
			logger.Info("webhooks configured", "count", len(urls))
		}
	}

	h, cleanup, err := server.Handler(svc, st, srvCfg, logger)
	if err != nil {
		logger.Error("failed to build handler", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              *listen,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return context.Background() },
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("starting trinity-server", "listen", *listen, "repo", cfg.TrinityPath())
		var err error
		if *tlsCert != "" && *tlsKey != "" {
			err = srv.ListenAndServeTLS(*tlsCert, *tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
