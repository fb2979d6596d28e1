package credit

import (
	"fmt"

	"server/internal/domain"
)

// Options are the user-selected knobs that influence the price of a job.
type Options struct {
	Resolution      string `json:"resolution"`
	DurationSeconds int    `json:"duration_seconds"`
}

// baseCost is the fixed per-tool price in credits.
var baseCost = map[domain.Tool]int{
	domain.ToolBabyImage:    1,
	domain.ToolBabyPodcast:  4,
	domain.ToolTextToVideo:  5,
	domain.ToolImageToVideo: 5,
	domain.ToolLipSync:      3,
	domain.ToolEarthZoom:    4,
}

var videoTools = map[domain.Tool]bool{
	domain.ToolTextToVideo:  true,
	domain.ToolImageToVideo: true,
	domain.ToolBabyPodcast:  true,
	domain.ToolLipSync:      true,
	domain.ToolEarthZoom:    true,
}

const (
	defaultDurationSeconds = 5
	maxDurationSeconds     = 30
	durationBlockSeconds   = 5
)

// Cost computes the fixed price of a job from its tool and options. It is
// deterministic and validated locally: callers compute it before reserving.
func Cost(tool domain.Tool, opts Options) (int, error) {
	base, ok := baseCost[tool]
	if !ok {
		return 0, fmt.Errorf("%w: no pricing for tool %q", domain.ErrInvalidPayload, tool)
	}
	cost := base

	if videoTools[tool] {
		duration := opts.DurationSeconds
		if duration == 0 {
			duration = defaultDurationSeconds
		}
		if duration < 0 || duration > maxDurationSeconds {
			return 0, fmt.Errorf("%w: duration_seconds must be 1-%d", domain.ErrInvalidPayload, maxDurationSeconds)
		}
		// Each started block of durationBlockSeconds costs one base increment.
		blocks := (duration + durationBlockSeconds - 1) / durationBlockSeconds
		cost = base * blocks
	} else if opts.DurationSeconds != 0 {
		return 0, fmt.Errorf("%w: duration_seconds not supported for %s", domain.ErrInvalidPayload, tool)
	}

	switch opts.Resolution {
	case "", "720p":
	case "1080p":
		cost *= 2
	default:
		return 0, fmt.Errorf("%w: unsupported resolution %q", domain.ErrInvalidPayload, opts.Resolution)
	}

	return cost, nil
}

// Pricing lists the per-tool base costs for display.
func Pricing() map[string]int {
	out := make(map[string]int, len(baseCost))
	for tool, cost := range baseCost {
		out[string(tool)] = cost
	}
	return out
}
