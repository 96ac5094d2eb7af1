package bots

import (
	"fmt"
	"strings"
	"time"
)

// Tier is a difficulty level. The set is closed: every Tier maps to exactly
// one Profile.
type Tier int

const (
	Beginner Tier = iota + 1
	Easy
	Intermediate
	Advanced
	Master
)

// ThinkingJitter is the upper bound of the random extra delay.
const ThinkingJitter = 500 * time.Millisecond

// BeginnerRandomRate is how often the lowest tier plays a random move.
const BeginnerRandomRate = 0.7

// Profile is the immutable configuration of a tier.
type Profile struct {
	Tier         Tier
	ID           string
	Name         string
	Description  string
	Rating       string
	SearchDepth  int
	Randomness   float64
	ThinkingTime time.Duration
	// MostlyRandom selects the beginner policy: random moves most of the time,
	// otherwise a one-ply static choice.
	MostlyRandom bool
}

// Tiers lists every tier from weakest to strongest.
func Tiers() []Tier {
	return []Tier{Beginner, Easy, Intermediate, Advanced, Master}
}

func (t Tier) Profile() Profile {
	switch t {
	case Beginner:
		return Profile{Tier: t, ID: "beginner", Name: "Rookie", Description: "Just learning the moves",
			Rating: "400-600", SearchDepth: 1, Randomness: 0.3, ThinkingTime: 300 * time.Millisecond, MostlyRandom: true}
	case Easy:
		return Profile{Tier: t, ID: "easy", Name: "Casual", Description: "Plays for fun",
			Rating: "800-1000", SearchDepth: 2, Randomness: 0.15, ThinkingTime: 500 * time.Millisecond}
	case Intermediate:
		return Profile{Tier: t, ID: "intermediate", Name: "Club Player", Description: "Solid fundamentals",
			Rating: "1200-1400", SearchDepth: 3, Randomness: 0.08, ThinkingTime: 800 * time.Millisecond}
	case Advanced:
		return Profile{Tier: t, ID: "advanced", Name: "Expert", Description: "Tactical and sharp",
			Rating: "1600-1800", SearchDepth: 4, Randomness: 0.03, ThinkingTime: 1200 * time.Millisecond}
	case Master:
		return Profile{Tier: t, ID: "master", Name: "Grandmaster", Description: "Nearly unbeatable",
			Rating: "2000+", SearchDepth: 5, Randomness: 0, ThinkingTime: 1500 * time.Millisecond}
	}
	panic(fmt.Sprintf("bots: unknown tier %d", int(t)))
}

func (t Tier) Valid() bool {
	return t >= Beginner && t <= Master
}

func (t Tier) String() string {
	if !t.Valid() {
		return fmt.Sprintf("Tier(%d)", int(t))
	}
	return t.Profile().ID
}

// Next cycles to the following tier, wrapping after Master.
func (t Tier) Next() Tier {
	if t >= Master || t < Beginner {
		return Beginner
	}
	return t + 1
}

// ParseTier accepts a tier id ("easy") or its number ("2").
func ParseTier(s string) (Tier, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, t := range Tiers() {
		if s == t.Profile().ID || s == fmt.Sprint(int(t)) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown difficulty %q", s)
}
