package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/npc-cognition/internal/api"
	"github.com/talgya/npc-cognition/internal/config"
	"github.com/talgya/npc-cognition/internal/decision"
	"github.com/talgya/npc-cognition/internal/engine"
	"github.com/talgya/npc-cognition/internal/entropy"
	"github.com/talgya/npc-cognition/internal/persistence"
	"github.com/talgya/npc-cognition/internal/personality"
	"github.com/talgya/npc-cognition/internal/phi"
	"github.com/talgya/npc-cognition/internal/weather"
)

var (
	fresh    bool
	maxTicks uint64

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the simulation with the HTTP API until interrupted",
		RunE:  runSimulation,
	}
)

func init() {
	runCmd.Flags().BoolVar(&fresh, "fresh", false, "ignore saved state and spawn from config")
	runCmd.Flags().Uint64Var(&maxTicks, "ticks", 0, "stop after this many ticks (0 runs until interrupted)")
}

// pipeline holds the components every character shares.
type pipeline struct {
	seed     int64
	cfg      *config.Config
	tmpl     *personality.Template
	lib      *personality.Library
	decision decision.Config
	sim      *engine.Simulation
}

// newPipeline builds the interpreter, registry and simulation from cfg.
// No characters are spawned.
func newPipeline(cfg *config.Config) (*pipeline, error) {
	seed := entropy.ResolveSeed(cfg.Seed)

	in, err := cfg.Interpreter()
	if err != nil {
		return nil, err
	}
	reg, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	dc, err := cfg.DecisionConfig()
	if err != nil {
		return nil, err
	}
	tmpl, err := cfg.Template()
	if err != nil {
		return nil, err
	}
	lib, err := cfg.Library()
	if err != nil {
		return nil, err
	}

	sim := engine.NewSimulation(engine.Options{
		Seed:             seed,
		Concurrency:      cfg.Simulation.Concurrency,
		ActionTimeout:    cfg.Simulation.ActionTimeout,
		HistoryRetention: cfg.History.Retention,
	}, in, reg)

	return &pipeline{seed: seed, cfg: cfg, tmpl: tmpl, lib: lib, decision: dc, sim: sim}, nil
}

// spawnConfigured spawns every character named in the config.
func (p *pipeline) spawnConfigured() error {
	for _, ch := range p.cfg.Simulation.Characters {
		rng := entropy.New(entropy.Derive(p.seed, "profile/"+ch.Name))
		prof, err := config.BuildProfile(ch, rng, p.tmpl, p.lib)
		if err != nil {
			return fmt.Errorf("character %s: %w", ch.Name, err)
		}
		if _, err := p.sim.Spawn(prof, p.decision); err != nil {
			return err
		}
	}
	return nil
}

// restore spawns the saved characters with their recent decision history.
func (p *pipeline) restore(db *persistence.DB) error {
	snaps, err := db.LoadCharacters()
	if err != nil {
		return err
	}
	for _, s := range snaps {
		prof, err := personality.Restore(s, p.tmpl, p.lib)
		if err != nil {
			return fmt.Errorf("restore %s: %w", s.Name, err)
		}
		c, err := p.sim.Spawn(prof, p.decision)
		if err != nil {
			return err
		}
		recs, err := db.LoadDecisions(c.ID, p.cfg.History.Retention)
		if err != nil {
			return err
		}
		c.History().Load(recs)
	}
	p.sim.SetTick(db.LastTick())
	return nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	slog.Info("npcsim starting",
		"phi", phi.Phi,
		"agnosis", fmt.Sprintf("%.5f", phi.Agnosis),
		"psyche", fmt.Sprintf("%.5f", phi.Psyche),
	)

	p, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	slog.Info("pipeline ready", "seed", p.seed, "tools", len(p.sim.Registry.All()))

	// ── Database ──────────────────────────────────────────────────────
	dbPath := cfg.Simulation.DBPath
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := persistence.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database opened", "path", dbPath)

	// ── Load or spawn characters ──────────────────────────────────────
	if !fresh && db.HasWorldState() {
		slog.Info("found saved state, restoring...")
		if err := p.restore(db); err != nil {
			return err
		}
	} else {
		if fresh {
			if err := db.Reset(); err != nil {
				return err
			}
		}
		if err := p.spawnConfigured(); err != nil {
			return err
		}
		if err := db.SaveWorldState(p.sim); err != nil {
			return err
		}
	}
	start := p.sim.CurrentTick()
	slog.Info("characters ready",
		"count", len(p.sim.Characters()),
		"tick", start,
		"sim_time", engine.SimTime(start),
	)

	p.sim.Director = engine.NewDirector(p.seed, cfg.Simulation.EventRate)
	p.sim.Drift = engine.NewDrift(p.seed)
	if feed := weather.NewFeed(weather.NewClient(os.Getenv("NPCSIM_WEATHER_KEY"), os.Getenv("NPCSIM_WEATHER_LOCATION"))); feed != nil {
		p.sim.Weather = feed
		slog.Info("weather feed enabled")
	}

	// ── Engine ────────────────────────────────────────────────────────
	eng := engine.NewEngine()
	eng.Interval = cfg.Simulation.TickInterval
	eng.SetTick(start)

	save := func() {
		if err := db.SaveWorldState(p.sim); err != nil {
			slog.Error("failed to save world state", "error", err)
		}
	}
	eng.OnTick = func(tick uint64) {
		p.sim.TickMinute(tick)
		if cfg.Simulation.SaveEvery > 0 && tick%cfg.Simulation.SaveEvery == 0 {
			save()
		}
		if maxTicks > 0 && tick-start >= maxTicks {
			eng.Stop()
		}
	}
	eng.OnHour = p.sim.TickHour
	eng.OnDay = func(tick uint64) {
		p.sim.TickDay(tick)
		save()
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	srv := &api.Server{
		Sim:      p.sim,
		Eng:      eng,
		DB:       db,
		Port:     cfg.Simulation.APIPort,
		AdminKey: os.Getenv("NPCSIM_ADMIN_KEY"),
		RelayKey: os.Getenv("NPCSIM_RELAY_KEY"),
		Decision: p.decision,
	}
	if srv.AdminKey == "" {
		slog.Warn("NPCSIM_ADMIN_KEY not set, admin endpoints disabled")
	}
	srv.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	began := time.Now()
	eng.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown", "error", err)
	}

	slog.Info("saving final state...")
	if err := db.SaveWorldState(p.sim); err != nil {
		return fmt.Errorf("final save: %w", err)
	}

	stats := p.sim.Stats()
	slog.Info("simulation stopped",
		"sim_time", engine.SimTime(p.sim.CurrentTick()),
		"decisions", humanize.Comma(int64(stats.Decisions)),
		"failures", humanize.Comma(int64(stats.Failures)),
		"started", humanize.Time(began),
	)
	return nil
}
