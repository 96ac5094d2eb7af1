// Package config resolves runtime settings from defaults, CHESSPLAY_*
// environment variables and command-line flags, in that order.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"chessPlay/bots"
	"chessPlay/clock"
	"chessPlay/engine"
	"chessPlay/game"
)

var ErrInvalid = errors.New("config: invalid value")

const envPrefix = "CHESSPLAY_"

type Config struct {
	// EnginePath is the UCI analysis engine binary. Empty disables analysis.
	EnginePath    string
	DBPath        string
	Tier          string
	TimeControlID string
	PlayerColor   string
	AnalysisDepth int
	SkillLevel    int
	LogLevel      string
	// Resume continues the saved game, if any, instead of starting fresh.
	Resume bool
}

func Default() Config {
	d := game.DefaultSettings()
	return Config{
		DBPath:        defaultDBPath(),
		Tier:          d.Tier.String(),
		TimeControlID: d.TimeControl.ID,
		PlayerColor:   d.PlayerColor.String(),
		AnalysisDepth: 15,
		SkillLevel:    engine.MaxSkillLevel,
		LogLevel:      "info",
		Resume:        true,
	}
}

func defaultDBPath() string {
	if d, err := os.UserConfigDir(); err == nil && d != "" {
		return filepath.Join(d, "chessPlay", "chessplay.db")
	}
	return "chessplay.db"
}

// Load builds a Config for args (without the program name). getenv is
// usually os.Getenv.
func Load(args []string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("chessplay", flag.ContinueOnError)
	fs.StringVar(&cfg.EnginePath, "engine", cfg.EnginePath, "path to a UCI engine used for analysis")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database file")
	fs.StringVar(&cfg.Tier, "bot", cfg.Tier, "bot difficulty: beginner, easy, intermediate, advanced, master")
	fs.StringVar(&cfg.TimeControlID, "time", cfg.TimeControlID, "time control id, e.g. blitz-5 or rapid-10-5")
	fs.StringVar(&cfg.PlayerColor, "color", cfg.PlayerColor, "side you play: white or black")
	fs.IntVar(&cfg.AnalysisDepth, "depth", cfg.AnalysisDepth, "analysis depth")
	fs.IntVar(&cfg.SkillLevel, "skill", cfg.SkillLevel, "engine skill level 0-20")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "trace, debug, info, warn or error")
	fs.BoolVar(&cfg.Resume, "resume", cfg.Resume, "continue the saved game")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"ENGINE":    &c.EnginePath,
		"DB":        &c.DBPath,
		"BOT":       &c.Tier,
		"TIME":      &c.TimeControlID,
		"COLOR":     &c.PlayerColor,
		"LOG_LEVEL": &c.LogLevel,
	}
	for k, p := range strs {
		if v := getenv(envPrefix + k); v != "" {
			*p = v
		}
	}
	ints := map[string]*int{
		"DEPTH": &c.AnalysisDepth,
		"SKILL": &c.SkillLevel,
	}
	for k, p := range ints {
		if v := getenv(envPrefix + k); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%w: %s%s=%q", ErrInvalid, envPrefix, k, v)
			}
			*p = n
		}
	}
	if v := getenv(envPrefix + "RESUME"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %sRESUME=%q", ErrInvalid, envPrefix, v)
		}
		c.Resume = b
	}
	return nil
}

func (c Config) Validate() error {
	if _, err := c.Settings(); err != nil {
		return err
	}
	if c.AnalysisDepth < 1 || c.AnalysisDepth > engine.MaxDepth {
		return fmt.Errorf("%w: depth %d not in 1..%d", ErrInvalid, c.AnalysisDepth, engine.MaxDepth)
	}
	if c.SkillLevel < 0 || c.SkillLevel > engine.MaxSkillLevel {
		return fmt.Errorf("%w: skill %d not in 0..%d", ErrInvalid, c.SkillLevel, engine.MaxSkillLevel)
	}
	if c.DBPath == "" {
		return fmt.Errorf("%w: empty database path", ErrInvalid)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Settings returns the game settings for a new game.
func (c Config) Settings() (game.Settings, error) {
	tier, err := bots.ParseTier(c.Tier)
	if err != nil {
		return game.Settings{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	tc, ok := clock.LookupTimeControl(c.TimeControlID)
	if !ok {
		return game.Settings{}, fmt.Errorf("%w: time control %q", ErrInvalid, c.TimeControlID)
	}
	color, err := game.ParseColor(strings.ToLower(c.PlayerColor))
	if err != nil {
		return game.Settings{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return game.Settings{Tier: tier, TimeControl: tc, PlayerColor: color}, nil
}

func (c Config) Level() (zerolog.Level, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("%w: log level %q", ErrInvalid, c.LogLevel)
	}
	return lvl, nil
}
