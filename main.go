package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/rs/zerolog"

	"chessPlay/config"
	"chessPlay/engine"
	"chessPlay/game"
	"chessPlay/store"
)

func main() {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		log.Fatal(err)
	}
	level, _ := cfg.Level()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()

	ctx := context.Background()
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		log.Fatal(err)
	}
	db, err := store.Open(ctx, cfg.DBPath, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	var analyzer game.Analyzer
	var eng *engine.Session
	if cfg.EnginePath != "" {
		if eng, err = startEngine(ctx, cfg, logger); err != nil {
			logger.Warn().Err(err).Str("engine", cfg.EnginePath).Msg("analysis disabled")
		} else {
			analyzer = eng
			defer eng.Terminate()
		}
	}

	session := game.NewSession(game.Config{
		Logger:   logger,
		Store:    db,
		Analyzer: analyzer,
	})
	defer session.Close()

	settings, err := initialSettings(ctx, cfg, db)
	if err != nil {
		log.Fatal(err)
	}

	resumed := false
	if cfg.Resume {
		if resumed, err = session.Resume(ctx); err != nil {
			logger.Warn().Err(err).Msg("saved game could not be resumed")
			_ = db.ClearCurrent(ctx)
		}
	}

	app := NewApp(session, db, settings, cfg.AnalysisDepth, logger)
	app.started = resumed
	if eng != nil {
		defer eng.Observe(app.onAnalysis)()
	}

	ebiten.SetWindowSize(windowWidth, windowHeight)
	ebiten.SetWindowTitle("chessPlay")
	ebiten.SetWindowResizable(true)
	if err := ebiten.RunGame(app); err != nil {
		log.Fatal(err)
	}
}

func startEngine(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*engine.Session, error) {
	proc, err := engine.StartProcess(ctx, cfg.EnginePath, logger)
	if err != nil {
		return nil, err
	}
	eng, err := engine.Connect(ctx, proc, engine.Config{Logger: logger})
	if err != nil {
		proc.Close()
		return nil, err
	}
	if err := eng.SetSkillLevel(cfg.SkillLevel); err != nil {
		eng.Terminate()
		return nil, err
	}
	logger.Info().Str("engine", eng.Name()).Msg("analysis engine ready")
	return eng, nil
}

// initialSettings starts from the saved preferences. Values given on the
// command line or in the environment take precedence.
func initialSettings(ctx context.Context, cfg config.Config, db *store.SQLite) (game.Settings, error) {
	prefs, err := db.Preferences(ctx)
	if err != nil {
		return game.Settings{}, err
	}
	explicit, err := cfg.Settings()
	if err != nil {
		return game.Settings{}, err
	}
	def := config.Default()
	if cfg.Tier != def.Tier {
		prefs.Tier = explicit.Tier
	}
	if cfg.TimeControlID != def.TimeControlID {
		prefs.TimeControlID = explicit.TimeControl.ID
	}
	if cfg.PlayerColor != def.PlayerColor {
		prefs.PlayerColor = explicit.PlayerColor.String()
	}
	return prefs.Settings()
}
