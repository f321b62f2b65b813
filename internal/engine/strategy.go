package engine

import "github.com/trinitydb/trinity/internal/models"

// Disposition is the decision a strategy took for one conflict.
type Disposition struct {
	Conflict   *models.Conflict
	Resolution models.ResolutionKind
}

// Outcome is the result of applying a strategy to a detected conflict set.
// It is computed before anything is persisted: the caller writes the
// operation, the conflicts and the auto-resolutions in one transaction.
type Outcome struct {
	Status       models.MergeStatus
	AutoResolved []Disposition
	ManualCount  int
}

// Complete reports whether the strategy settled every conflict.
func (o *Outcome) Complete() bool {
	return o.Status == models.MergeCompleted
}

// ExecuteStrategy decides the fate of every detected conflict under the
// given strategy. It is a pure function: identical inputs always yield the
// identical outcome.
func ExecuteStrategy(strategy models.MergeStrategy, conflicts []*models.Conflict) (*Outcome, error) {
	if !strategy.Valid() {
		return nil, models.InvalidInput("unknown merge strategy %q", strategy)
	}

	out := &Outcome{}
	if len(conflicts) == 0 {
		out.Status = models.MergeCompleted
		return out, nil
	}

	switch strategy {
	case models.StrategyAbortOnConflict:
		out.Status = models.MergeAborted

	case models.StrategySourceWins:
		for _, c := range conflicts {
			out.AutoResolved = append(out.AutoResolved, Disposition{Conflict: c, Resolution: models.ResolutionSource})
		}
		out.Status = models.MergeCompleted

	case models.StrategyTargetWins:
		for _, c := range conflicts {
			out.AutoResolved = append(out.AutoResolved, Disposition{Conflict: c, Resolution: models.ResolutionTarget})
		}
		out.Status = models.MergeCompleted

	case models.StrategyUnion, models.StrategyManualReview:
		// Union and manual review auto-settle only the conflicts the
		// classifier marked safe. For those the unambiguous outcome is
		// both sides' non-overlapping changes combined, which the applier
		// materializes as a custom definition.
		for _, c := range conflicts {
			if c.AutoResolvable {
				out.AutoResolved = append(out.AutoResolved, Disposition{Conflict: c, Resolution: models.ResolutionCustom})
				continue
			}
			out.ManualCount++
		}
		if out.ManualCount > 0 {
			out.Status = models.MergeResolving
		} else {
			out.Status = models.MergeCompleted
		}
	}

	return out, nil
}
