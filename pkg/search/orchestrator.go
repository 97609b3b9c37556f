package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxResults caps a lane's list when the caller does not say.
const DefaultMaxResults = 10

// DefaultExactTrustThreshold is the exact-lane confidence above which the
// same track is suppressed from the vibe list.
const DefaultExactTrustThreshold = 0.85

// Budget bounds lane runtime. Total caps the combined wait in both-lane
// searches; when it fires, still-running lanes are cancelled.
type Budget struct {
	Exact time.Duration
	Vibe  time.Duration
	Total time.Duration
}

// DefaultBudget returns the shipped lane budgets.
func DefaultBudget() Budget {
	return Budget{
		Exact: 3 * time.Second,
		Vibe:  4 * time.Second,
		Total: 5 * time.Second,
	}
}

// Orchestrator fans a query out to the requested lanes and folds their
// results into one response.
type Orchestrator struct {
	exact  *ExactLane
	vibe   *VibeLane
	budget Budget
	trust  float64
	log    *slog.Logger
}

// NewOrchestrator wires the lanes together. Non-positive budget fields and
// trust fall back to the defaults.
func NewOrchestrator(exact *ExactLane, vibe *VibeLane, budget Budget, trust float64, log *slog.Logger) *Orchestrator {
	def := DefaultBudget()
	if budget.Exact <= 0 {
		budget.Exact = def.Exact
	}
	if budget.Vibe <= 0 {
		budget.Vibe = def.Vibe
	}
	if budget.Total <= 0 {
		budget.Total = def.Total
	}
	if trust <= 0 {
		trust = DefaultExactTrustThreshold
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{exact: exact, vibe: vibe, budget: budget, trust: trust, log: log}
}

// Search runs the lanes mode selects and returns their merged response.
// Single-lane modes fail on a lane timeout (ErrTimeout) or lane error
// (ErrUnavailable). Both-lane mode degrades: one failed lane leaves its
// list empty, and only two failed lanes fail the search, as a timeout
// when either lane timed out.
func (o *Orchestrator) Search(ctx context.Context, pcm16, pcm48 []byte, mode Mode, maxResults int) (*Response, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	start := time.Now()
	resp := &Response{
		RequestID:    uuid.NewString(),
		ModeUsed:     mode,
		ExactMatches: []ExactMatch{},
		VibeMatches:  []VibeMatch{},
	}

	switch mode {
	case ModeExact:
		matches, err := o.runExact(ctx, pcm16, maxResults)
		if err != nil {
			return nil, err
		}
		resp.ExactMatches = matches
	case ModeVibe:
		matches, err := o.runVibe(ctx, pcm48, maxResults)
		if err != nil {
			return nil, err
		}
		resp.VibeMatches = matches
	case ModeBoth:
		exactMatches, vibeMatches, err := o.runBoth(ctx, pcm16, pcm48, maxResults)
		if err != nil {
			return nil, err
		}
		resp.ExactMatches = exactMatches
		resp.VibeMatches = vibeMatches
	default:
		return nil, fmt.Errorf("search: unknown mode %q", mode)
	}

	resp.TotalElapsedMS = time.Since(start).Milliseconds()
	o.log.Info("search done",
		"request_id", resp.RequestID,
		"mode", mode,
		"exact", len(resp.ExactMatches),
		"vibe", len(resp.VibeMatches),
		"elapsed_ms", resp.TotalElapsedMS)
	return resp, nil
}

// runBoth executes both lanes concurrently under the total budget. The
// lanes share nothing but the read-only PCM buffers, so one failing must
// not cancel the other.
func (o *Orchestrator) runBoth(ctx context.Context, pcm16, pcm48 []byte, maxResults int) ([]ExactMatch, []VibeMatch, error) {
	ctx, cancel := context.WithTimeout(ctx, o.budget.Total)
	defer cancel()

	var (
		wg           sync.WaitGroup
		exactMatches []ExactMatch
		vibeMatches  []VibeMatch
		exactErr     error
		vibeErr      error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		exactMatches, exactErr = o.runExact(ctx, pcm16, maxResults)
	}()
	go func() {
		defer wg.Done()
		vibeMatches, vibeErr = o.runVibe(ctx, pcm48, maxResults)
	}()
	wg.Wait()

	if exactErr != nil && vibeErr != nil {
		if errors.Is(exactErr, ErrTimeout) || errors.Is(vibeErr, ErrTimeout) {
			return nil, nil, fmt.Errorf("%w: both lanes failed", ErrTimeout)
		}
		if errors.Is(exactErr, context.Canceled) {
			return nil, nil, exactErr
		}
		return nil, nil, fmt.Errorf("%w: both lanes failed", ErrUnavailable)
	}
	if exactErr != nil {
		o.log.Warn("exact lane failed, returning vibe results only", "error", exactErr)
		exactMatches = []ExactMatch{}
	}
	if vibeErr != nil {
		o.log.Warn("vibe lane failed, returning exact results only", "error", vibeErr)
		vibeMatches = []VibeMatch{}
	}
	return exactMatches, dropTrusted(exactMatches, vibeMatches, o.trust), nil
}

func (o *Orchestrator) runExact(ctx context.Context, pcm16 []byte, maxResults int) ([]ExactMatch, error) {
	ctx, cancel := context.WithTimeout(ctx, o.budget.Exact)
	defer cancel()
	matches, err := o.exact.Search(ctx, pcm16, maxResults)
	if err != nil {
		return nil, classify("exact", err, o.budget.Exact)
	}
	return matches, nil
}

func (o *Orchestrator) runVibe(ctx context.Context, pcm48 []byte, maxResults int) ([]VibeMatch, error) {
	ctx, cancel := context.WithTimeout(ctx, o.budget.Vibe)
	defer cancel()
	matches, err := o.vibe.Search(ctx, pcm48, maxResults)
	if err != nil {
		return nil, classify("vibe", err, o.budget.Vibe)
	}
	return matches, nil
}

// classify maps a lane error onto the orchestrator's error kinds. Caller
// cancellation passes through untouched.
func classify(lane string, err error, budget time.Duration) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s lane after %s", ErrTimeout, lane, budget)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %s lane: %v", ErrUnavailable, lane, err)
	}
}

// dropTrusted removes from vibe every track the exact lane already matched
// at or above trust. A verbatim hit is not interesting as "similar".
func dropTrusted(exact []ExactMatch, vibe []VibeMatch, trust float64) []VibeMatch {
	if len(exact) == 0 || len(vibe) == 0 {
		return vibe
	}
	trusted := make(map[string]struct{})
	for _, m := range exact {
		if m.Confidence >= trust {
			trusted[m.Track.ID] = struct{}{}
		}
	}
	if len(trusted) == 0 {
		return vibe
	}
	kept := vibe[:0]
	for _, m := range vibe {
		if _, ok := trusted[m.Track.ID]; ok {
			continue
		}
		kept = append(kept, m)
	}
	return kept
}
