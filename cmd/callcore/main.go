// Command callcore is the main entry point for the voice-agent call core.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voicecore/callcore/internal/app"
	"github.com/voicecore/callcore/internal/callstore"
	"github.com/voicecore/callcore/internal/config"
	"github.com/voicecore/callcore/internal/credentialvault"
	embopenai "github.com/voicecore/callcore/internal/embeddings/openai"
	"github.com/voicecore/callcore/internal/fillerindex"
	"github.com/voicecore/callcore/internal/llmsession"
	"github.com/voicecore/callcore/internal/llmsession/anthropic"
	"github.com/voicecore/callcore/internal/llmsession/openai"
	"github.com/voicecore/callcore/internal/observe"
)

// Process exit codes.
const (
	exitOK              = 0
	exitConfigError     = 2
	exitVaultKeyMissing = 3
	exitPortBindFailure = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "callcore: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "callcore: %v\n", err)
		}
		return exitConfigError
	}
	applyEnvOverlay(cfg)

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)
	slog.Info("callcore starting", "config", *configPath, "listen_addr", cfg.Server.ListenAddr)

	otelShutdown, err := observe.InitProvider(context.Background(), observe.ProviderConfig{ServiceName: "callcore"})
	if err != nil {
		slog.Error("failed to init telemetry", "err", err)
		return exitConfigError
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shutdownCtx)
	}()

	vault, err := buildVault()
	if err != nil {
		slog.Error("credential vault unavailable", "err", err)
		return exitVaultKeyMissing
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storeURL := os.Getenv("STORE_URL")
	if storeURL == "" {
		slog.Error("STORE_URL is required")
		return exitConfigError
	}
	store, err := callstore.New(ctx, storeURL, logger)
	if err != nil {
		slog.Error("failed to connect to call store", "err", err)
		return exitConfigError
	}
	defer store.Close()

	apiKey := os.Getenv("LLM_API_KEY")
	if apiKey == "" {
		slog.Error("LLM_API_KEY is required")
		return exitConfigError
	}

	llmProvider, err := buildLLMProvider(llmRegistry(apiKey), cfg.LLM)
	if err != nil {
		slog.Error("failed to build llm provider", "err", err)
		return exitConfigError
	}

	fillerIdx, err := buildFillerIndex(ctx, cfg, storeURL, apiKey, logger)
	if err != nil {
		slog.Error("failed to build filler semantic index", "err", err)
		return exitConfigError
	}
	if fillerIdx != nil {
		defer fillerIdx.Close()
	}

	application, err := app.New(ctx, cfg, app.Deps{
		Vault:         vault,
		Store:         store,
		LLM:           llmProvider,
		FillerIndex:   fillerIdx,
		PublicBaseURL: cfg.Server.PublicBaseURL,
		PublicWSBase:  cfg.Server.PublicWSBase,
	})
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return exitConfigError
	}

	watcher, err := config.NewWatcher(*configPath, application.ApplyConfig)
	if err != nil {
		slog.Warn("config watcher unavailable; live reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		if isPortBindError(err) {
			slog.Error("failed to bind listen address", "addr", cfg.Server.ListenAddr, "err", err)
			return exitPortBindFailure
		}
		slog.Error("run error", "err", err)
		return exitConfigError
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return exitConfigError
	}
	slog.Info("goodbye")
	return exitOK
}

// applyEnvOverlay applies the environment secrets and endpoint overrides on top
// of the YAML config, so a committed config file never needs to carry
// secrets or deployment-specific endpoints.
func applyEnvOverlay(cfg *config.Config) {
	if v := os.Getenv("PUBLIC_BASE_URL"); v != "" {
		cfg.Server.PublicBaseURL = v
	}
	if v := os.Getenv("PUBLIC_WS_BASE"); v != "" {
		cfg.Server.PublicWSBase = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.ListenAddr = ":" + v
	}
}

func buildVault() (*credentialvault.Vault, error) {
	key := os.Getenv("VOIP_ENCRYPTION_KEY")
	if key == "" {
		return nil, errors.New("VOIP_ENCRYPTION_KEY is required")
	}
	return credentialvault.NewFromPassphrase(key)
}

// llmRegistry registers the concrete LLM session backends. Adding a backend
// means adding a RegisterLLM call here; nothing else in the wiring changes.
func llmRegistry(apiKey string) *config.Registry {
	reg := config.NewRegistry()
	reg.RegisterLLM("openai", func(cfg config.LLMConfig) (llmsession.Provider, error) {
		var opts []openai.Option
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(apiKey, opts...), nil
	})
	reg.RegisterLLM("anthropic", func(cfg config.LLMConfig) (llmsession.Provider, error) {
		var opts []anthropic.Option
		if cfg.Model != "" {
			opts = append(opts, anthropic.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		return anthropic.New(apiKey, opts...), nil
	})
	return reg
}

// buildLLMProvider resolves the configured backend and, when
// llm.fallback_provider is set, wraps it so session opens fail over to the
// second backend.
func buildLLMProvider(reg *config.Registry, cfg config.LLMConfig) (llmsession.Provider, error) {
	primary, err := reg.CreateLLM(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.FallbackProvider == "" {
		return primary, nil
	}

	secondary, err := reg.CreateLLM(config.LLMConfig{Provider: cfg.FallbackProvider})
	if err != nil {
		return nil, fmt.Errorf("fallback provider: %w", err)
	}
	fp := llmsession.NewFallbackProvider(primary, cfg.Provider)
	fp.AddFallback(cfg.FallbackProvider, secondary)
	return fp, nil
}

// buildFillerIndex constructs the pgvector-backed filler semantic index
// when fillers.semantic_fallback is enabled. It shares the call store's
// database and reuses the LLM API key for the embeddings backend.
func buildFillerIndex(ctx context.Context, cfg *config.Config, dsn, apiKey string, logger *slog.Logger) (*fillerindex.Index, error) {
	if !cfg.Fillers.SemanticFallback {
		return nil, nil
	}
	embedder, err := embopenai.New(apiKey, cfg.Fillers.EmbeddingsModel)
	if err != nil {
		return nil, err
	}
	return fillerindex.New(ctx, dsn, embedder, logger)
}

func isPortBindError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "listen"
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
