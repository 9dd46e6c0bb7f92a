package search

import "github.com/edgevdb/core/internal/corerr"

// Mode selects which scoring path a search uses.
type Mode int

const (
	ModeExact Mode = iota
	ModeIVF
	ModeAuto
)

var errInvalidMode = corerr.NewInvalidArgument("mode must be one of exact, ivf, auto")

// ParseMode maps the wire string an external caller (HTTP layer, CLI) sends
// to a Mode, rejecting anything else with an invalid_argument error.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "exact":
		return ModeExact, nil
	case "ivf":
		return ModeIVF, nil
	case "auto", "":
		return ModeAuto, nil
	default:
		return 0, errInvalidMode
	}
}

// Thresholds mirrors the config.Config fields the dispatch policy reads.
type Thresholds struct {
	InlineMaxPoints          int
	InlineMaxWork            int64
	LightLoadMaxWork         int64
	LightLoadMaxInFlight     int
	ParallelScoreMinPoints   int
	ParallelScoreMinWork     int64
	ParallelScoreMinChunkLen int
}

// Plan is the dispatch decision for one search: which scoring path to use
// and whether it runs inline on the caller's goroutine or is offloaded.
type Plan struct {
	UseIVF  bool
	Inline  bool
	ChunkLen int // only meaningful when !Inline && !UseIVF
}

// Decide implements spec.md §4.5's auto dispatch policy. n is the
// collection's point count, dimension its vector width, queries the batch
// size (1 for a single search), inFlight the current in-flight request
// gauge, and hasValidArtifact whether a fresh IVF artifact exists.
func Decide(mode Mode, n, dimension, queries, inFlight int, hasValidArtifact bool, t Thresholds) Plan {
	work := int64(n) * int64(dimension) * int64(queries)

	switch mode {
	case ModeExact:
		return Plan{UseIVF: false, Inline: n < t.InlineMaxPoints && work < t.InlineMaxWork, ChunkLen: t.ParallelScoreMinChunkLen}
	case ModeIVF:
		return Plan{UseIVF: true}
	default:
		if n < t.InlineMaxPoints && work < t.InlineMaxWork {
			return Plan{Inline: true}
		}
		if inFlight <= t.LightLoadMaxInFlight && work <= t.LightLoadMaxWork {
			return Plan{Inline: true}
		}
		if hasValidArtifact && (n >= t.ParallelScoreMinPoints || work >= t.ParallelScoreMinWork) {
			return Plan{UseIVF: true}
		}
		return Plan{Inline: false, UseIVF: false, ChunkLen: t.ParallelScoreMinChunkLen}
	}
}
