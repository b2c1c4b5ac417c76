package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openfroyo/firecontain/pkg/config"
	"github.com/openfroyo/firecontain/pkg/contain"
	"github.com/openfroyo/firecontain/pkg/policy"
	"github.com/openfroyo/firecontain/pkg/scenario"
	"github.com/openfroyo/firecontain/pkg/settings"
	"github.com/openfroyo/firecontain/pkg/stores"
	"github.com/openfroyo/firecontain/pkg/telemetry"
)

// shutdownTimeout bounds telemetry flushing on exit.
const shutdownTimeout = 5 * time.Second

// app holds the components a command works with. Store and policies are
// nil when disabled in the settings.
type app struct {
	settings *settings.Settings
	tel      *telemetry.Telemetry
	store    *stores.SQLiteStore
	policies *policy.Engine
	parser   *config.CUEParser
}

type appOptions struct {
	// needStore fails bootstrap when the archive is disabled.
	needStore bool

	// metrics serves the metrics endpoint if enabled in the settings.
	metrics bool
}

// newApp loads the settings and builds every component. The returned
// context carries the telemetry; the app must be closed.
func newApp(ctx context.Context, version string, opts appOptions) (*app, context.Context, error) {
	s, err := settings.Load(configPath)
	if err != nil {
		return nil, ctx, err
	}
	if noStore {
		s.Store.Enabled = false
	}
	if opts.needStore && !s.Store.Enabled {
		return nil, ctx, fmt.Errorf("run archive is disabled")
	}

	if level, err := zerolog.ParseLevel(s.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	if used := settings.ConfigFileUsed(); used != "" {
		log.Debug().Str("config", used).Msg("Loaded settings")
	}

	tel, err := telemetry.NewTelemetry(s.Telemetry(version))
	if err != nil {
		return nil, ctx, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a := &app{
		settings: s,
		tel:      tel,
		parser:   config.NewCUEParser(config.WithStarlarkTimeout(s.Starlark.Timeout)),
	}
	ctx = tel.WithContext(ctx)

	if opts.metrics {
		if err := tel.StartMetricsServer(); err != nil {
			a.close()
			return nil, ctx, fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	if s.Store.Enabled {
		store, err := openStore(ctx, s.Store.Path)
		if err != nil {
			a.close()
			return nil, ctx, err
		}
		a.store = store
		tel.Events.Subscribe(store.EventSink(tel.Logger), archivedEvents)
	}

	if s.Policy.Enabled {
		engineOpts := []policy.Option{
			policy.WithEnvironment(s.Environment),
			policy.WithTelemetry(tel),
		}
		if !s.Policy.Builtin {
			engineOpts = append(engineOpts, policy.WithoutBuiltins())
		}
		engine, err := policy.NewEngine(tel.Logger.Zerolog(), engineOpts...)
		if err != nil {
			a.close()
			return nil, ctx, fmt.Errorf("failed to create policy engine: %w", err)
		}
		if s.Policy.Dir != "" {
			if err := engine.LoadPolicies(ctx, []string{s.Policy.Dir}); err != nil {
				a.close()
				return nil, ctx, fmt.Errorf("failed to load policies: %w", err)
			}
		}
		a.policies = engine
	}

	return a, ctx, nil
}

// openStore opens and migrates the archive, creating its directory.
func openStore(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// archivedEvents keeps per-pass events out of the archive.
func archivedEvents(e telemetry.Event) bool {
	return e.Type != telemetry.EventTypePassResolved
}

// close shuts telemetry down before the store so that queued events are
// archived.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.tel.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Telemetry shutdown incomplete")
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close store")
		}
	}
}

// runner builds a scenario runner archiving into the store.
func (a *app) runner(source string, observers ...contain.Observer) *scenario.Runner {
	opts := []scenario.RunnerOption{scenario.WithSource(source)}
	if a.store != nil {
		opts = append(opts, scenario.WithRecorder(a.store))
	}
	for _, o := range observers {
		opts = append(opts, scenario.WithRunObserver(o))
	}
	return scenario.NewRunner(opts...)
}

// evaluate applies the policies to a record and archives the verdicts.
// It returns nil when policies are disabled or the run failed.
func (a *app) evaluate(ctx context.Context, rec *scenario.Record) (*policy.Result, error) {
	if a.policies == nil {
		return nil, nil
	}
	result, err := a.policies.EvaluateRecord(ctx, rec)
	if err != nil || result == nil {
		return result, err
	}
	if a.store != nil {
		if err := a.store.SavePolicyResults(ctx, policy.StoreResults(rec.RunID, result)); err != nil {
			return result, fmt.Errorf("failed to save policy results: %w", err)
		}
	}
	return result, nil
}

// parse reads scenario documents, logging every problem found.
func (a *app) parse(ctx context.Context, sources []string) ([]*scenario.Scenario, error) {
	parsed, err := a.parser.Parse(ctx, sources)
	if err != nil {
		return nil, err
	}
	for _, e := range parsed.Errors {
		if e.Severity == config.SeverityWarning {
			log.Warn().Msg(e.Error())
		}
	}
	if err := parsed.Err(); err != nil {
		return nil, err
	}
	if len(parsed.Scenarios) == 0 {
		return nil, errors.New("no scenarios defined")
	}
	return parsed.Scenarios, nil
}

// selectScenarios narrows scenarios to the named ones, keeping their order.
func selectScenarios(all []*scenario.Scenario, names []string) ([]*scenario.Scenario, error) {
	if len(names) == 0 {
		return all, nil
	}
	byName := make(map[string]*scenario.Scenario, len(all))
	for _, s := range all {
		byName[s.Name] = s
	}
	selected := make([]*scenario.Scenario, 0, len(names))
	for _, name := range names {
		s, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("scenario %q not found", name)
		}
		selected = append(selected, s)
	}
	return selected, nil
}
