// Package main is the batch dispatch command. It reads prompts from a file,
// submits them to the configured providers, and writes an aggregated report.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/osate/dispatch"
	"github.com/osate/dispatch/internal/config"
	"github.com/osate/dispatch/internal/secret"
	"github.com/osate/dispatch/internal/secret/env"
	"github.com/osate/dispatch/internal/secret/vault"
	"github.com/osate/dispatch/pkg/credential"
	"github.com/osate/dispatch/pkg/provider"
	"github.com/osate/dispatch/pkg/report"
	"github.com/osate/dispatch/providers"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to run configuration file")
	promptsPath := flag.String("prompts", "", "path to prompts file, JSON array or one prompt per line (default stdin)")
	outPath := flag.String("out", "", "write the JSON report to this file (default stdout)")
	csvPath := flag.String("csv", "", "also write a CSV export to this file")
	concurrency := flag.Int("concurrency", 0, "override run.concurrency from the config")
	flag.Parse()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	prompts, err := readPrompts(*promptsPath)
	if err != nil {
		logger.Error("read prompts", "error", err)
		os.Exit(1)
	}
	if len(prompts) == 0 {
		logger.Error("no prompts to process")
		os.Exit(1)
	}

	secrets, err := newSecretManager(cfg.Vault, logger)
	if err != nil {
		logger.Error("secret backend init", "error", err)
		os.Exit(1)
	}
	defer secrets.Close()

	clients, err := buildClients(ctx, cfg, secrets, logger)
	if err != nil {
		logger.Error("client setup", "error", err)
		os.Exit(1)
	}

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics, logger)
	}

	runConc := cfg.Run.Concurrency
	if *concurrency > 0 {
		runConc = *concurrency
	}
	runner, err := dispatch.NewRunner(clients,
		dispatch.WithRunnerLogger(logger),
		dispatch.WithConcurrency(runConc),
	)
	if err != nil {
		logger.Error("runner setup", "error", err)
		os.Exit(1)
	}

	rep, err := runner.Run(ctx, prompts)
	if err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}

	if err := writeReport(rep, *outPath, *csvPath); err != nil {
		logger.Error("write report", "error", err)
		os.Exit(1)
	}

	if rep.Summary.Fails > 0 {
		os.Exit(2)
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// readPrompts accepts either a JSON array (strings or {"prompt": ...}
// objects) or a plain text file with one prompt per line.
func readPrompts(path string) ([]string, error) {
	var data []byte
	var err error
	if path == "" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		return parseJSONPrompts([]byte(trimmed))
	}

	var prompts []string
	sc := bufio.NewScanner(strings.NewReader(trimmed))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		prompts = append(prompts, line)
	}
	return prompts, sc.Err()
}

func parseJSONPrompts(data []byte) ([]string, error) {
	var asStrings []string
	if err := json.Unmarshal(data, &asStrings); err == nil {
		return asStrings, nil
	}

	var asObjects []struct {
		Prompt string `json:"prompt"`
	}
	if err := json.Unmarshal(data, &asObjects); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	prompts := make([]string, 0, len(asObjects))
	for _, o := range asObjects {
		if o.Prompt != "" {
			prompts = append(prompts, o.Prompt)
		}
	}
	return prompts, nil
}

func newSecretManager(cfg config.VaultConfig, logger *slog.Logger) (*secret.Manager, error) {
	m := secret.NewManager()
	m.Register("env", secret.Cached(env.New(), 5*time.Minute))

	if cfg.Address != "" {
		vp, err := vault.New(vault.Config{
			Address:  cfg.Address,
			Token:    cfg.Token,
			RoleID:   cfg.RoleID,
			SecretID: cfg.SecretID,
			CACert:   cfg.CACert,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		m.Register("vault", secret.Cached(vp, 5*time.Minute))
	}
	return m, nil
}

func buildClients(ctx context.Context, cfg *config.Config, secrets *secret.Manager, logger *slog.Logger) ([]*dispatch.Client, error) {
	providers.RegisterBuiltins()

	clients := make([]*dispatch.Client, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		ptype, err := provider.ParseType(pc.Type)
		if err != nil {
			return nil, err
		}

		keys, err := secrets.ResolveKeys(ctx, pc.APIKeys)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", pc.Name, err)
		}
		if len(keys) == 0 {
			// Fall back to the conventional environment variables.
			keys = credential.FromEnv(strings.ToUpper(pc.Name))
		}
		if len(keys) == 0 {
			return nil, fmt.Errorf("provider %q: no API keys resolved", pc.Name)
		}

		prov, err := providers.Create(provider.Config{
			Type:    ptype,
			BaseURL: pc.BaseURL,
			Headers: pc.Headers,
		})
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", pc.Name, err)
		}

		opts := []dispatch.ClientOption{
			dispatch.WithLogger(logger),
			dispatch.WithTimeout(cfg.Run.Timeout),
			dispatch.WithMaxTokens(cfg.Run.MaxTokens),
			dispatch.WithTemperature(cfg.Run.Temperature),
		}
		if pc.RequestsPerKey > 0 {
			opts = append(opts, dispatch.WithRequestsPerKey(pc.RequestsPerKey))
		}
		if pc.MaxAttemptsPerKey > 0 {
			opts = append(opts, dispatch.WithMaxAttemptsPerKey(pc.MaxAttemptsPerKey))
		}
		if pc.RequestsPerMinute > 0 {
			opts = append(opts, dispatch.WithRequestsPerMinute(pc.RequestsPerMinute))
		}

		client, err := dispatch.NewClient(prov, pc.Model, keys, opts...)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", pc.Name, err)
		}
		clients = append(clients, client)

		logger.Info("target configured",
			"provider", pc.Name,
			"type", pc.Type,
			"model", pc.Model,
			"keys", len(keys),
		)
	}
	return clients, nil
}

func serveMetrics(cfg config.MetricsConfig, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("metrics listener started", "addr", cfg.Addr, "path", cfg.Path)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Warn("metrics listener stopped", "error", err)
	}
}

func writeReport(rep *report.Report, outPath, csvPath string) error {
	if outPath == "" {
		if err := rep.WriteJSON(os.Stdout); err != nil {
			return err
		}
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		if err := rep.WriteJSON(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}

	if csvPath != "" {
		f, err := os.Create(csvPath)
		if err != nil {
			return err
		}
		if err := rep.WriteCSV(f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}
	return nil
}
