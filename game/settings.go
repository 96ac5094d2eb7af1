package game

import (
	"errors"
	"fmt"

	"github.com/notnil/chess"

	"chessPlay/bots"
	"chessPlay/clock"
)

var ErrInvalidSettings = errors.New("game: invalid settings")

// Settings are chosen before a game starts and fixed for its duration.
type Settings struct {
	Tier        bots.Tier
	TimeControl clock.TimeControl
	PlayerColor chess.Color
}

// DefaultSettings matches a first-time player: a club-level bot, five
// minutes, playing White.
func DefaultSettings() Settings {
	tc, _ := clock.LookupTimeControl("blitz-5")
	return Settings{
		Tier:        bots.Intermediate,
		TimeControl: tc,
		PlayerColor: chess.White,
	}
}

func (s Settings) Validate() error {
	if !s.Tier.Valid() {
		return fmt.Errorf("%w: difficulty %d", ErrInvalidSettings, int(s.Tier))
	}
	if s.TimeControl.Initial <= 0 || s.TimeControl.Increment < 0 {
		return fmt.Errorf("%w: time control %q", ErrInvalidSettings, s.TimeControl.ID)
	}
	if s.PlayerColor != chess.White && s.PlayerColor != chess.Black {
		return fmt.Errorf("%w: player color", ErrInvalidSettings)
	}
	return nil
}

// BotColor is the side the computer plays.
func (s Settings) BotColor() chess.Color {
	return s.PlayerColor.Other()
}

// ParseColor accepts "w", "white", "b" or "black".
func ParseColor(s string) (chess.Color, error) {
	switch s {
	case "w", "white", "White":
		return chess.White, nil
	case "b", "black", "Black":
		return chess.Black, nil
	}
	return chess.NoColor, fmt.Errorf("%w: color %q", ErrInvalidSettings, s)
}
