// Package app wires all call-core subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP surface until its context is cancelled,
// and Shutdown tears everything down in order.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"gopkg.in/yaml.v3"

	"github.com/voicecore/callcore/internal/callfsm"
	"github.com/voicecore/callcore/internal/callstore"
	"github.com/voicecore/callcore/internal/config"
	"github.com/voicecore/callcore/internal/credentialvault"
	"github.com/voicecore/callcore/internal/fillerindex"
	"github.com/voicecore/callcore/internal/fillersource"
	"github.com/voicecore/callcore/internal/health"
	"github.com/voicecore/callcore/internal/intelligence"
	"github.com/voicecore/callcore/internal/llmsession"
	"github.com/voicecore/callcore/internal/mediabridge"
	"github.com/voicecore/callcore/internal/observe"
	"github.com/voicecore/callcore/internal/providerdriver"
	driverregistry "github.com/voicecore/callcore/internal/providerdriver/registry"
	"github.com/voicecore/callcore/internal/signaling"
	"github.com/voicecore/callcore/pkg/model"
	"github.com/voicecore/callcore/pkg/vad"
	"github.com/voicecore/callcore/pkg/vad/energy"
)

// Deps supplies the pieces of App that main.go assembles from environment
// secrets before calling New: the decrypted CredentialVault, the durable
// CallStore, the selected LLM provider, and (optionally) the filler-clip
// semantic index. Everything else App builds from cfg.
type Deps struct {
	Vault *credentialvault.Vault
	Store callstore.Interface
	LLM   llmsession.Provider

	// FillerIndex enables the semantic nearest-transcript fallback for
	// filler selection. Optional.
	FillerIndex *fillerindex.Index

	PublicBaseURL string
	PublicWSBase  string
}

// App owns all subsystem lifetimes and serves the call core's HTTP surface.
type App struct {
	deps Deps

	registry *mediabridge.MemRegistry
	bridge   *mediabridge.Handler
	router   *signaling.Router
	health   *health.Handler
	metrics  *observe.Metrics

	server *http.Server

	// Hot-reloadable lookup state: agent and phone-number assignments can
	// change between calls via the config watcher. Provider drivers and the
	// LLM backend are fixed for the process lifetime.
	stateMu sync.RWMutex
	cfg     *config.Config
	agents  map[string]model.AgentConfig

	closers  []func() error
	stopOnce sync.Once
}

// New wires every subsystem from cfg and deps: the provider-driver
// registry (one Driver instance per configured ProviderConfig, credentials
// decrypted once through deps.Vault), the conversation-intelligence trio
// (Analyzer/PrincipleEngine/HedgeEngine), the VAD engine, the media bridge,
// and the signaling router, then binds them to an *http.Server.
func New(ctx context.Context, cfg *config.Config, deps Deps) (*App, error) {
	a := &App{deps: deps, cfg: cfg, agents: cfg.AgentMap()}

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return nil, fmt.Errorf("app: init metrics: %w", err)
	}
	a.metrics = metrics

	drivers, err := buildDrivers(cfg, deps.Vault)
	if err != nil {
		return nil, fmt.Errorf("app: build provider drivers: %w", err)
	}

	clips, err := loadFillerCatalog(cfg.Fillers.IndexPath)
	if err != nil {
		return nil, fmt.Errorf("app: load filler catalog: %w", err)
	}
	hedge, fillerStore := a.buildFillerPipeline(ctx, cfg.Fillers, clips)
	var fillers callfsm.FillerSource
	if fillerStore != nil {
		fillers = fillerStore
	}

	newAnalyzer, err := buildAnalyzerFactory(cfg.Intelligence)
	if err != nil {
		return nil, fmt.Errorf("app: load keyword tables: %w", err)
	}

	a.registry = mediabridge.NewMemRegistry()

	a.bridge = mediabridge.New(mediabridge.Deps{
		Registry:    a.registry,
		Store:       deps.Store,
		LLM:         deps.LLM,
		VAD:         vad.Engine(energy.New()),
		Hedge:       hedge,
		Fillers:     fillers,
		Metrics:     metrics,
		NewAnalyzer: newAnalyzer,
		OnEnded: func(call model.Call) {
			dur := float64(call.DurationSec)
			if dur == 0 && call.EndedAt != nil {
				dur = call.EndedAt.Sub(call.StartedAt).Seconds()
			}
			metrics.RecordCallEnded(context.Background(), string(call.Status), dur)
		},
	})

	a.router = signaling.New(signaling.Deps{
		Store:        deps.Store,
		Agents:       a.lookupAgent,
		PhoneNumbers: a.lookupPhoneNumber,
		Providers: func(providerID string) (model.ProviderConfig, bool) {
			p, ok := cfg.ProviderMap()[providerID]
			return p, ok
		},
		Drivers: func(providerID string) (providerdriver.Driver, bool) {
			d, ok := drivers[providerID]
			return d, ok
		},
		Registry:      a.registry,
		Signaler:      a.bridge,
		Metrics:       metrics,
		PublicBaseURL: deps.PublicBaseURL,
		PublicWSBase:  deps.PublicWSBase,
	})

	a.health = health.New(health.Checker{
		Name:  "store",
		Check: func(ctx context.Context) error { return pingStore(ctx, deps.Store) },
	})

	mux := http.NewServeMux()
	a.router.Register(mux)
	a.bridge.Register(mux)
	a.health.Register(mux)

	a.server = &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: observe.Middleware(metrics)(mux),
	}

	return a, nil
}

// lookupAgent satisfies signaling.AgentLookup against the hot-reloadable
// agent table.
func (a *App) lookupAgent(agentID string) (model.AgentConfig, bool) {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	ag, ok := a.agents[agentID]
	return ag, ok
}

// lookupPhoneNumber satisfies signaling.PhoneNumberLookup against the
// current config snapshot.
func (a *App) lookupPhoneNumber(agentID string) (model.PhoneNumber, bool) {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return a.cfg.PhoneNumberByAgent(agentID)
}

// ApplyConfig is the config.Watcher onChange hook: it swaps in the new
// agent and phone-number tables for calls started after the reload. Server,
// LLM, and provider-credential changes need a restart and are only logged.
func (a *App) ApplyConfig(old, new *config.Config) {
	diff := config.Diff(old, new)

	if old.Server != new.Server && !diff.LogLevelChanged {
		slog.Warn("app: server config changed on disk; restart required to apply")
	}
	if old.LLM != new.LLM {
		slog.Warn("app: llm config changed on disk; restart required to apply")
	}

	a.stateMu.Lock()
	a.cfg = new
	a.agents = new.AgentMap()
	a.stateMu.Unlock()

	if diff.AgentsChanged {
		for _, ch := range diff.AgentChanges {
			slog.Info("app: agent config reloaded", "agent_id", ch.ID,
				"added", ch.Added, "removed", ch.Removed,
				"prompt_changed", ch.PromptChanged, "speech_changed", ch.SpeechChanged)
		}
	}
}

// buildFillerPipeline constructs the hedge engine, wires the semantic
// fallback index (including a startup transcript-embedding pass), and
// prepares the on-disk clip source with the pre-warm set cached in memory.
func (a *App) buildFillerPipeline(ctx context.Context, cfg config.FillerConfig, clips []model.FillerClip) (*intelligence.HedgeEngine, *fillersource.Store) {
	var opts []intelligence.HedgeOption
	if a.deps.FillerIndex != nil {
		opts = append(opts, intelligence.WithSemanticFallback(a.deps.FillerIndex))
	}

	hedge := intelligence.NewHedgeEngine(clips, opts...)
	if cfg.PreWarmCount > 0 {
		hedge.PreWarm(cfg.PreWarmCount)
	}

	if a.deps.FillerIndex != nil {
		var transcripts []fillerindex.ClipTranscript
		for _, c := range clips {
			if c.Transcript != "" {
				transcripts = append(transcripts, fillerindex.ClipTranscript{ClipID: c.ID, Transcript: c.Transcript})
			}
		}
		indexCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := a.deps.FillerIndex.IndexClips(indexCtx, transcripts); err != nil {
			slog.Warn("app: filler transcript indexing failed; semantic fallback degraded", "err", err)
		}
		cancel()
	}

	if cfg.AudioDir == "" {
		return hedge, nil
	}
	fillers := fillersource.New(cfg.AudioDir)
	if err := fillers.Preload(hedge.PreWarmed()); err != nil {
		slog.Warn("app: filler pre-warm load failed", "err", err)
	}
	return hedge, fillers
}

// buildAnalyzerFactory returns the per-call analyzer constructor, carrying
// operator keyword-table overrides when configured.
func buildAnalyzerFactory(cfg config.IntelligenceConfig) (func() *intelligence.Analyzer, error) {
	if cfg.KeywordsPath == "" {
		return nil, nil
	}
	tables, err := intelligence.LoadKeywordTables(cfg.KeywordsPath)
	if err != nil {
		return nil, err
	}
	return func() *intelligence.Analyzer {
		return intelligence.NewAnalyzer(intelligence.WithKeywordTables(tables))
	}, nil
}

// buildDrivers constructs one providerdriver.Driver per configured
// ProviderConfig, decrypting its credentials through the vault exactly
// once per driver instance (see providerdriver/registry.New).
func buildDrivers(cfg *config.Config, vault *credentialvault.Vault) (map[string]providerdriver.Driver, error) {
	drivers := make(map[string]providerdriver.Driver, len(cfg.Providers))
	for _, entry := range cfg.Providers {
		pc := entry.ToModel()
		drv, err := driverregistry.New(pc, vault)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", pc.ID, err)
		}
		drivers[pc.ID] = drv
	}
	return drivers, nil
}

// Run serves the HTTP surface until ctx is cancelled or the server exits.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("app: listening", "addr", a.server.Addr)
		errCh <- a.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// Shutdown stops the HTTP server and runs every registered closer.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("app: http shutdown error", "err", err)
			shutdownErr = err
		}
		for i, closer := range a.closers {
			if err := closer(); err != nil {
				slog.Warn("app: closer error", "index", i, "err", err)
			}
		}
	})
	return shutdownErr
}

func pingStore(ctx context.Context, store callstore.Interface) error {
	type pinger interface{ Ping(context.Context) error }
	if p, ok := store.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// loadFillerCatalog reads a YAML catalog of model.FillerClip entries from
// path. An empty path yields an empty catalog (HedgeEngine falls back to
// its synthetic silent clip for every gap).
func loadFillerCatalog(path string) ([]model.FillerClip, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	var clips []model.FillerClip
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&clips); err != nil {
		return nil, fmt.Errorf("decode %q: %w", path, err)
	}
	return clips, nil
}
