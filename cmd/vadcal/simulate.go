package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/vadcal/internal/calibrate"
	"github.com/MrWong99/vadcal/internal/config"
	"github.com/MrWong99/vadcal/internal/health"
	"github.com/MrWong99/vadcal/internal/history"
	"github.com/MrWong99/vadcal/internal/observe"
	"github.com/MrWong99/vadcal/internal/playback"
	"github.com/MrWong99/vadcal/internal/report"
	"github.com/MrWong99/vadcal/pkg/provider/stt"
	"github.com/MrWong99/vadcal/pkg/provider/vad/replay"
	"github.com/MrWong99/vadcal/pkg/settings"
)

// SimulateCmd drives a complete calibration run. Phase 1 replays the speech
// trace, phase 2 replays the leakage trace while the utterance is played.
type SimulateCmd struct {
	Speech   string `required:"" type:"existingfile" help:"Trace replayed during the speech-profile phase."`
	Leakage  string `required:"" type:"existingfile" help:"Trace replayed while the utterance plays."`
	Settings string `type:"path" help:"Override settings.path."`
	Output   string `type:"path" help:"Write the synthesised PCM to this file instead of discarding it."`
	History  string `type:"path" help:"Override settings.history_path."`
	DryRun   bool   `help:"Show the results without applying them."`
}

// simulation is a wired calibration run.
type simulation struct {
	machine *calibrate.Machine
	player  *replay.Source
	store   valueStore
	speech  *replay.Trace
	leakage *replay.Trace
	history *history.FileStore
	settled chan calibrate.State
	closers []io.Closer
}

// Run implements the kong command.
func (c *SimulateCmd) Run(app *appContext) error {
	cfg := app.cfg

	var (
		metrics = observe.DefaultMetrics()
		tel     *observe.Telemetry
	)
	if cfg.Server.MetricsAddr != "" {
		var err error
		tel, err = observe.InitProvider(app.ctx, observe.ProviderConfig{ServiceVersion: version, RuntimeMetrics: true})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tel.Shutdown(ctx); err != nil {
				slog.Warn("telemetry shutdown error", "err", err)
			}
		}()
		if metrics, err = observe.NewMetrics(tel.MeterProvider); err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
	}

	sim, err := c.setup(cfg, metrics)
	if err != nil {
		return err
	}
	defer sim.close()

	runCtx, cancel := context.WithCancel(app.ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer cancel()
		return c.drive(gctx, sim)
	})
	if addr := cfg.Server.MetricsAddr; addr != "" {
		checkers := []health.Checker{health.MachineState(sim.machine)}
		if path := cmp.Or(c.Settings, cfg.Settings.Path); path != "" {
			checkers = append(checkers, health.SettingsDir(path))
		}
		hh := health.New(sim.machine, checkers...)
		g.Go(func() error {
			return serveTelemetry(gctx, addr, tel, metrics, hh)
		})
	}
	return g.Wait()
}

// setup loads the traces and wires the providers, settings store and machine.
func (c *SimulateCmd) setup(cfg *config.Config, metrics *observe.Metrics) (*simulation, error) {
	speech, err := replay.Load(c.Speech)
	if err != nil {
		return nil, err
	}
	leakage, err := replay.Load(c.Leakage)
	if err != nil {
		return nil, err
	}

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	entry := cfg.Providers.VAD
	if entry.Name == "" {
		entry.Name = "replay"
	}
	src, err := reg.CreateVAD(entry)
	if err != nil {
		return nil, fmt.Errorf("create vad provider %q: %w", entry.Name, err)
	}
	player, ok := src.(*replay.Source)
	if !ok {
		return nil, fmt.Errorf("simulate needs the replay vad provider, got %q", entry.Name)
	}

	voice, format, err := buildTTS(reg, cfg.Providers)
	if err != nil {
		return nil, err
	}

	sim := &simulation{
		player:  player,
		speech:  speech,
		leakage: leakage,
		settled: make(chan calibrate.State, 4),
	}

	out := io.Writer(io.Discard)
	if c.Output != "" {
		f, err := os.Create(c.Output)
		if err != nil {
			return nil, fmt.Errorf("create output: %w", err)
		}
		sim.closers = append(sim.closers, f)
		out = f
	}
	speaker := playback.New(voice, out,
		playback.WithFormat(format),
		playback.WithVoice(voiceFor(cfg.Providers.TTS)),
	)

	if sim.store, err = openSettings(cmp.Or(c.Settings, cfg.Settings.Path)); err != nil {
		sim.close()
		return nil, err
	}

	if path := cmp.Or(c.History, cfg.Settings.HistoryPath); path != "" {
		sim.history = history.NewFileStore(path)
	}

	opts := append(cfg.Calibration.Options(), calibrate.WithMetrics(metrics))
	sim.machine = calibrate.New(calibrate.Deps{
		Source:   player,
		Listener: stt.NewSwitch(false),
		Speaker:  speaker,
		Settings: sim.store,
	}, opts...)
	sim.machine.OnStateChange(func(_, to calibrate.State) {
		if to == calibrate.StatePhase1Summary || to == calibrate.StatePhase2Summary {
			sim.settled <- to
		}
	})
	sim.closers = append([]io.Closer{sim.machine}, sim.closers...)
	return sim, nil
}

func (s *simulation) close() {
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			slog.Warn("close error", "err", err)
		}
	}
}

// drive walks the machine through both phases.
func (c *SimulateCmd) drive(ctx context.Context, sim *simulation) error {
	m := sim.machine

	// Phase 1: replay the pause-then-speak trace for its full length.
	sim.player.Play(sim.speech)
	if err := m.Start(ctx); err != nil {
		return err
	}
	if err := sleep(ctx, sim.speech.Duration()); err != nil {
		return err
	}
	p1, err := m.FinishPhase1()
	if err != nil {
		return err
	}
	<-sim.settled
	fmt.Println(report.Phase1(p1))
	if p1.NoSpeechDetected {
		slog.Warn("no speech detected in trace, continuing with conservative thresholds", "trace", c.Speech)
	}

	// Phase 2: replay the leakage trace while the utterance plays.
	sim.player.Play(sim.leakage)
	if err := m.StartPhase2(ctx); err != nil {
		return err
	}
	var state calibrate.State
	select {
	case state = <-sim.settled:
	case <-ctx.Done():
		return ctx.Err()
	}
	if state != calibrate.StatePhase2Summary {
		return fmt.Errorf("playback failed: %w", m.LastError())
	}
	snap := m.Snapshot()
	fmt.Println(report.Phase2(*snap.Phase2))

	outcome := "applied"
	if c.DryRun {
		slog.Info("dry run, discarding results")
		outcome = "discarded"
		if err := m.Cancel(); err != nil {
			return err
		}
	} else {
		if err := m.Apply(ctx); err != nil {
			return fmt.Errorf("apply calibration: %w", err)
		}
		fmt.Println(report.Settings(sim.store.Values()))
	}
	if sim.history != nil {
		if err := sim.history.Append(history.FromResults(outcome, *snap.Phase1, *snap.Phase2)); err != nil {
			slog.Warn("failed to record calibration history", "err", err)
		}
	}
	return nil
}

// valueStore is a settings sink that can report all of its values.
type valueStore interface {
	settings.Sink
	Values() settings.Values
}

// openSettings opens the YAML settings file at path, or an in-memory store
// when path is empty.
func openSettings(path string) (valueStore, error) {
	if path == "" {
		return settings.NewMemoryStore(settings.Defaults()), nil
	}
	s, err := settings.OpenFile(path)
	if err != nil {
		return nil, err
	}
	slog.Info("settings opened", "path", s.Path())
	return s, nil
}

// serveTelemetry serves /metrics and the health endpoints until ctx is done.
func serveTelemetry(ctx context.Context, addr string, tel *observe.Telemetry, metrics *observe.Metrics, hh *health.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", tel.Handler())
	hh.Register(mux)
	srv := &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("telemetry endpoint listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("telemetry server: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
