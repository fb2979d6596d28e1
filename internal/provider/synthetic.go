package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"server/internal/domain"
)

// Synthetic is a self-contained provider used when no API key is
// configured. Tasks complete deterministically after a fixed delay, which
// keeps the full lifecycle (dispatch, polling, transitions, refunds)
// exercisable in local and CI environments.
type Synthetic struct {
	delay time.Duration

	mu    sync.Mutex
	tasks map[string]syntheticTask
}

type syntheticTask struct {
	tool      domain.Tool
	createdAt time.Time
}

func NewSynthetic(delay time.Duration) *Synthetic {
	if delay <= 0 {
		delay = 10 * time.Second
	}
	return &Synthetic{delay: delay, tasks: make(map[string]syntheticTask)}
}

func (s *Synthetic) Submit(ctx context.Context, tool domain.Tool, payload json.RawMessage) (string, error) {
	ref := "synthetic-" + uuid.NewString()
	s.mu.Lock()
	s.tasks[ref] = syntheticTask{tool: tool, createdAt: time.Now()}
	s.mu.Unlock()
	return ref, nil
}

func (s *Synthetic) Status(ctx context.Context, ref string) (StatusResult, error) {
	s.mu.Lock()
	task, ok := s.tasks[ref]
	s.mu.Unlock()
	if !ok {
		return StatusResult{}, fmt.Errorf("provider: unknown task %s", ref)
	}
	elapsed := time.Since(task.createdAt)
	switch {
	case elapsed < s.delay/2:
		return StatusResult{State: StatePending}, nil
	case elapsed < s.delay:
		return StatusResult{State: StateProcessing}, nil
	default:
		uri := fmt.Sprintf("https://cdn.example.com/synthetic/%s/%s.mp4", task.tool, ref)
		if task.tool == domain.ToolBabyImage {
			uri = fmt.Sprintf("https://cdn.example.com/synthetic/%s/%s.png", task.tool, ref)
		}
		return StatusResult{State: StateCompleted, ResultURI: uri}, nil
	}
}

var _ Client = (*Synthetic)(nil)
