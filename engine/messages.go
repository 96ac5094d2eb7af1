package engine

import (
	"strconv"
	"strings"
)

// Message is one parsed line of engine output. The concrete type is one of
// ReadyOK, UCIOK, Info, BestMove, ID, Option or Unknown.
type Message interface {
	isMessage()
}

type ReadyOK struct{}

type UCIOK struct{}

// Info carries search progress. Scores are from the side to move, exactly
// as the engine reports them. HasScore is false for info lines without a
// score, such as "info string" or currmove updates.
type Info struct {
	Depth    int
	SelDepth int
	MultiPV  int
	Nodes    int64
	Time     int
	HasScore bool
	ScoreCP  int
	Mate     int
	IsMate   bool
	Bound    string
	PV       []string
	Text     string
}

// BestMove ends a search. Move is "(none)" or "0000" when the engine found
// nothing to play.
type BestMove struct {
	Move   string
	Ponder string
}

type ID struct {
	Key   string
	Value string
}

type Option struct {
	Name    string
	Type    string
	Default string
	Min     string
	Max     string
}

type Unknown struct {
	Line string
}

func (ReadyOK) isMessage()  {}
func (UCIOK) isMessage()    {}
func (Info) isMessage()     {}
func (BestMove) isMessage() {}
func (ID) isMessage()       {}
func (Option) isMessage()   {}
func (Unknown) isMessage()  {}

// IsNone reports whether the engine returned no move.
func (b BestMove) IsNone() bool {
	return b.Move == "" || b.Move == "(none)" || b.Move == "0000"
}

// Parse tokenizes a single output line.
func Parse(line string) Message {
	var fields = strings.Fields(line)
	if len(fields) == 0 {
		return Unknown{Line: line}
	}
	var args = fields[1:]
	switch fields[0] {
	case "readyok":
		return ReadyOK{}
	case "uciok":
		return UCIOK{}
	case "bestmove":
		return parseBestMove(line, args)
	case "info":
		return parseInfo(args)
	case "id":
		if len(args) == 0 {
			return Unknown{Line: line}
		}
		return ID{Key: args[0], Value: strings.Join(args[1:], " ")}
	case "option":
		return parseOption(args)
	}
	return Unknown{Line: line}
}

func parseBestMove(line string, args []string) Message {
	if len(args) == 0 {
		return Unknown{Line: line}
	}
	var result = BestMove{Move: args[0]}
	if len(args) >= 3 && args[1] == "ponder" {
		result.Ponder = args[2]
	}
	return result
}

func parseInfo(args []string) Info {
	var info Info
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "depth":
			info.Depth = atoiAt(args, i+1)
			i++
		case "seldepth":
			info.SelDepth = atoiAt(args, i+1)
			i++
		case "multipv":
			info.MultiPV = atoiAt(args, i+1)
			i++
		case "time":
			info.Time = atoiAt(args, i+1)
			i++
		case "nodes":
			if i+1 < len(args) {
				info.Nodes, _ = strconv.ParseInt(args[i+1], 10, 64)
			}
			i++
		case "score":
			if i+2 >= len(args) {
				return info
			}
			switch args[i+1] {
			case "cp":
				info.HasScore = true
				info.ScoreCP = atoiAt(args, i+2)
			case "mate":
				info.HasScore = true
				info.IsMate = true
				info.Mate = atoiAt(args, i+2)
			}
			i += 2
			if i+1 < len(args) && (args[i+1] == "lowerbound" || args[i+1] == "upperbound") {
				info.Bound = args[i+1]
				i++
			}
		case "pv":
			info.PV = append([]string(nil), args[i+1:]...)
			return info
		case "string":
			info.Text = strings.Join(args[i+1:], " ")
			return info
		}
	}
	return info
}

func parseOption(args []string) Message {
	var opt Option
	var key string
	var value []string
	flush := func() {
		var v = strings.Join(value, " ")
		switch key {
		case "name":
			opt.Name = v
		case "type":
			opt.Type = v
		case "default":
			opt.Default = v
		case "min":
			opt.Min = v
		case "max":
			opt.Max = v
		}
		value = value[:0]
	}
	for _, tok := range args {
		switch tok {
		case "name", "type", "default", "min", "max", "var":
			flush()
			key = tok
		default:
			value = append(value, tok)
		}
	}
	flush()
	return opt
}

func atoiAt(args []string, i int) int {
	if i >= len(args) {
		return 0
	}
	v, err := strconv.Atoi(args[i])
	if err != nil {
		return 0
	}
	return v
}
