package smp

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/cryodata/density.report/internal/monitoring"
)

// Candidate is one evaluated stretch plan for a profile.
type Candidate struct {
	Index        int
	Plan         StretchPlan
	Score        SkillScore
	Samples      []ExtractedSample
	ValidWindows int
}

// SearchResult is the outcome of the alignment search for one profile.
type SearchResult struct {
	Best          Candidate
	Aligned       *Profile // winning plan reapplied to every co-located column
	Evaluated     int
	RejectedPlans int // InvalidPlan regenerations across all candidates
	Excluded      int // under-sampled windows for the winning candidate
}

// Search runs the full candidate budget for one resampled profile against a
// fixed set of sampling windows and selects the best-fitting stretch plan.
//
// Candidates are scored on the density column. Evaluation fans out over
// pa.Workers goroutines; each candidate draws from its own sub-seed derived
// from (pa.Seed, index), so the candidate set — and therefore the selected
// plan — is exactly reproducible for a fixed seed regardless of scheduling.
// Selection ranks by descending correlation, then ascending bias-corrected
// RMSE, then ascending MAE, then candidate index.
func Search(ctx context.Context, p *Profile, windows []SamplingWindow, pa Params) (SearchResult, error) {
	if p.Density == nil {
		return SearchResult{}, fmt.Errorf("profile %s: density column required for scoring", p.SiteID)
	}
	if len(windows) < pa.MinValidWindows {
		return SearchResult{}, fmt.Errorf("profile %s: %w: %d windows, need %d",
			p.SiteID, ErrTooFewWindows, len(windows), pa.MinValidWindows)
	}
	if pa.NumTests <= 0 {
		return SearchResult{}, fmt.Errorf("profile %s: candidate budget must be positive", p.SiteID)
	}

	workers := pa.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > pa.NumTests {
		workers = pa.NumTests
	}

	totalDepth := p.TotalDepth()
	minCount := pa.MinEnclosedPoints()

	// Each worker writes only its own candidate slots; no locking in the hot
	// loop. The first generation error wins, everything else keeps going so
	// the result set stays index-complete.
	candidates := make([]Candidate, pa.NumTests)
	rejects := make([]int, pa.NumTests)

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	indexes := make(chan int)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				plan, rejected, err := GeneratePlan(pa, totalDepth, deriveSeed(pa.Seed, i))
				rejects[i] = rejected
				if err != nil {
					errOnce.Do(func() { firstErr = fmt.Errorf("candidate %d: %w", i, err) })
					candidates[i] = Candidate{Index: i}
					continue
				}

				axis := plan.ApplyToAxis(p.Depth)
				samples := ExtractSamples(axis, p.Density, windows)
				retrieved, reference, _ := pairSamples(samples, windows, minCount)

				c := Candidate{
					Index:        i,
					Plan:         plan,
					Samples:      samples,
					ValidWindows: len(retrieved),
				}
				if c.ValidWindows >= pa.MinValidWindows {
					c.Score = Skill(retrieved, reference)
				}
				candidates[i] = c
			}
		}()
	}

feed:
	for i := 0; i < pa.NumTests; i++ {
		select {
		case <-ctx.Done():
			errOnce.Do(func() { firstErr = ctx.Err() })
			break feed
		case indexes <- i:
		}
	}
	close(indexes)
	wg.Wait()

	if firstErr != nil {
		return SearchResult{}, fmt.Errorf("profile %s: %w", p.SiteID, firstErr)
	}

	// Reduce. Iterating in index order makes the index itself the final
	// tiebreak, which pins down the reproducible outcome.
	best := -1
	totalRejected := 0
	for i := range candidates {
		totalRejected += rejects[i]
		if candidates[i].ValidWindows < pa.MinValidWindows {
			continue
		}
		if best < 0 || candidates[i].Score.Better(candidates[best].Score) {
			best = i
		}
	}
	if best < 0 {
		return SearchResult{}, fmt.Errorf("profile %s: %w after %d candidates",
			p.SiteID, ErrNoValidCandidate, pa.NumTests)
	}

	winner := candidates[best]
	_, _, excluded := pairSamples(winner.Samples, windows, minCount)
	monitoring.Debugf("[search] profile %s: candidate %d wins (r=%.4f ubRMSE=%.2f, %d/%d windows, %d plans regenerated)",
		p.SiteID, winner.Index, winner.Score.R, winner.Score.UbRMSE, winner.ValidWindows, len(windows), totalRejected)

	return SearchResult{
		Best:          winner,
		Aligned:       winner.Plan.ApplyToProfile(p),
		Evaluated:     pa.NumTests,
		RejectedPlans: totalRejected,
		Excluded:      excluded,
	}, nil
}
