package analysis

import (
	"context"
	"time"

	"contracts-backend/internal/shared/metrics"
	"contracts-backend/internal/shared/telemetry"
)

// Sweeper reclaims jobs abandoned by a crashed or hung worker by
// force-failing anything stuck in PENDING/PROCESSING beyond the threshold.
type Sweeper struct {
	Repo      Repo
	Threshold time.Duration
}

// ClearStuck force-fails stuck jobs matching the optional filters and
// returns the cleared ids. Purely corrective: it never fails except on
// store errors.
func (s *Sweeper) ClearStuck(ctx context.Context, contractID, analysisType string) ([]string, error) {
	if analysisType != "" && !ValidAnalysisType(analysisType) {
		return nil, &ValidationError{Field: "analysisType", Message: "must be one of comprehensive, risk-assessment, clause-extraction, basic"}
	}

	ids, err := s.Repo.ClearStuck(ctx, s.threshold(), contractID, analysisType)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	for _, id := range ids {
		_ = s.Repo.AppendLog(ctx, id, "warn", "force-failed by stuck-job sweep")
	}
	metrics.JobsSwept.Add(float64(len(ids)))
	telemetry.Info("analysis.stuck_cleared", map[string]any{
		"count":         len(ids),
		"contract_id":   contractID,
		"analysis_type": analysisType,
	})
	return ids, nil
}

func (s *Sweeper) threshold() time.Duration {
	if s.Threshold > 0 {
		return s.Threshold
	}
	return DefaultStuckThreshold
}
