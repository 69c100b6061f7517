package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/gdamore/tcell/v2"
	"github.com/gilgamesh/engine/internal/asset"
	"github.com/gilgamesh/engine/internal/config"
	"github.com/gilgamesh/engine/internal/core/deaddrop"
	"github.com/gilgamesh/engine/internal/core/event"
	"github.com/gilgamesh/engine/internal/gfx"
	"github.com/gilgamesh/engine/internal/input"
	"github.com/gilgamesh/engine/internal/platform"
	"github.com/gilgamesh/engine/internal/renderer"
	"github.com/gilgamesh/engine/internal/resource"
	"github.com/gilgamesh/engine/internal/scene"
	"github.com/gilgamesh/engine/internal/updater"
	"github.com/pkg/profile"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner() {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m          Project Gilgamesh v0.1.0         \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
}

func printSection(title string) {
	lineLen := max(46-len(title)-1, 3)
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := max(42-len(label)-len(numStr), 3)
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

// ── Engine startup ─────────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/engine.toml"
	if p := os.Getenv("GILGAMESH_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	terminal := cfg.Graphics.Backend == "terminal"
	if terminal && cfg.Logging.File == "" {
		// The terminal backend owns the screen; keep logs off it.
		cfg.Logging.File = "gilgamesh.log"
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	switch cfg.Debug.Profile {
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(cfg.Debug.ProfileDir), profile.NoShutdownHook, profile.Quiet).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath(cfg.Debug.ProfileDir), profile.NoShutdownHook, profile.Quiet).Stop()
	}

	printBanner()

	// 3. Resource manager
	printSection("Resources")
	models := resource.New(asset.NewDecoder(cfg.Scene.ModelsDir), resource.Options{
		Workers: cfg.Performance.LoaderWorkers,
	}, log)
	defer models.Close()
	printOK(fmt.Sprintf("model loader (%d workers, %s)", cfg.Performance.LoaderWorkers, cfg.Scene.ModelsDir))

	// 4. Platform and graphics
	var (
		plat     platform.Platform
		graphics gfx.Context
		width    = cfg.Graphics.WindowWidth
		height   = cfg.Graphics.WindowHeight
		frames   int
	)
	if terminal {
		screen, err := tcell.NewScreen()
		if err != nil {
			return fmt.Errorf("open terminal: %w", err)
		}
		if err := screen.Init(); err != nil {
			return fmt.Errorf("init terminal: %w", err)
		}
		defer screen.Fini()
		term := platform.NewTerminal(screen, log)
		defer term.Close()
		plat = term
		graphics = gfx.NewTerminal(screen, cfg.Performance.MaxBatchSize, log)
		width, height = screen.Size()
	} else {
		plat = platform.NewHeadless(width, height)
		graphics = gfx.NewHeadless(width, height)
		frames = cfg.Graphics.HeadlessFrames
	}

	// 5. Scene
	printSection("Scene")
	state := updater.NewGameState(models, updater.Options{
		Interval:         cfg.Performance.UpdateInterval,
		CapFPS:           cfg.Performance.CapUpdateFPS,
		MotionSpeed:      cfg.Controls.MotionSpeed,
		MouseSensitivity: cfg.Controls.MouseSensitivity,
		MaxLights:        cfg.Performance.MaxLights,
		Width:            width,
		Height:           height,
	}, log)

	sc := scene.NewEngine(log)
	defer sc.Close()
	sc.DefaultFOV = cfg.Graphics.FOV
	if err := sc.Run(cfg.Scene.Script); err != nil {
		return fmt.Errorf("scene: %w", err)
	}
	ents, err := state.Populate(sc.Spawns())
	if err != nil {
		return fmt.Errorf("populate: %w", err)
	}
	printStat("Entities", len(ents))
	printStat("Lights", len(state.Lights()))
	if _, ok := state.Camera(); !ok {
		return errors.New("scene has no camera")
	}

	// 6. Loops
	var running atomic.Bool
	running.Store(true)
	events := event.NewQueue[input.Event]()
	snapshots := deaddrop.New[*renderer.WorldState]()

	updateLoop := updater.NewLoop(state, events, snapshots, &running, log)
	renderLoop := renderer.NewLoop(graphics, plat, models, snapshots, events, &running, renderer.Options{
		UpdateInterval: cfg.Performance.UpdateInterval,
		CapFPS:         cfg.Performance.CapRenderFPS,
		MaxFrames:      frames,
	}, log)

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		<-gctx.Done()
		running.Store(false)
		return nil
	})
	g.Go(updateLoop.Run)

	log.Info("engine started",
		zap.String("backend", cfg.Graphics.Backend),
		zap.Duration("update_interval", cfg.Performance.UpdateInterval))

	// The render loop keeps the calling goroutine: it owns the screen.
	renderErr := renderLoop.Run()
	stop()
	// Stop the loaders before waiting so a failed render loop cannot leave
	// the update loop waiting on them.
	models.Close()
	waitErr := g.Wait()
	if errors.Is(waitErr, resource.ErrClosed) {
		// The update loop was mid-step when the loaders stopped.
		waitErr = nil
	}

	log.Info("engine stopped",
		zap.Int("frames", renderLoop.State().Frames()),
		zap.Int64("steps", updateLoop.Steps()),
		zap.Int64("loads", models.Loads()))
	return errors.Join(renderErr, waitErr)
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	if cfg.File != "" {
		zapCfg.OutputPaths = []string{cfg.File}
		zapCfg.ErrorOutputPaths = []string{cfg.File}
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
