package finance

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sudandp/paradigm-ifs-sub000/internal/shared"
)

// Purge triggers, used in audit entries and metrics.
const (
	// TriggerList is the opportunistic sweep run while reading the deletion
	// log. It only fires when someone looks, so it gives no time bound.
	TriggerList = "list"
	// TriggerSchedule is the periodic sweep run by the worker. It is the only
	// path that bounds how long an expired record survives.
	TriggerSchedule = "schedule"
	// TriggerManual is an explicit permanent delete.
	TriggerManual = "manual"
)

// sweepActor stamps audit entries written by the sweeper.
var sweepActor = shared.Actor{ID: "system", Name: "Retention sweep", Role: "system"}

// SweepResult summarises one sweep.
type SweepResult struct {
	Trigger   string   `json:"trigger"`
	Scanned   int      `json:"scanned"`
	Purged    int      `json:"purged"`
	Failed    int      `json:"failed"`
	PurgedIDs []string `json:"purged_ids,omitempty"`
}

// SweepExpired purges every record deleted longer than the retention window
// ago, reading the store in batches. Individual purge failures are logged and
// counted; only a failure to read the store is returned.
func (s *Service) SweepExpired(ctx context.Context) (SweepResult, error) {
	now := s.clock()
	cutoff := now.Add(-s.lifecycle.retention())
	total := SweepResult{Trigger: TriggerSchedule}
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		batch, err := s.repo.ListExpired(ctx, cutoff, s.sweepBatch)
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			break
		}
		res := s.purgeExpired(ctx, batch, now, TriggerSchedule)
		total.Scanned += res.Scanned
		total.Purged += res.Purged
		total.Failed += res.Failed
		total.PurgedIDs = append(total.PurgedIDs, res.PurgedIDs...)
		// A batch that purged nothing would be read again unchanged.
		if len(batch) < s.sweepBatch || res.Purged == 0 {
			break
		}
	}
	s.logger.Info("retention sweep",
		slog.String("trigger", TriggerSchedule),
		slog.Int("scanned", total.Scanned),
		slog.Int("purged", total.Purged),
		slog.Int("failed", total.Failed),
	)
	return total, nil
}

func (s *Service) expiredOf(recs []Record, now time.Time) []Record {
	var out []Record
	for _, rec := range recs {
		if s.lifecycle.IsExpired(rec, now) {
			out = append(out, rec)
		}
	}
	return out
}

// purgeExpired removes the expired subset of recs one at a time. It never
// stops on a failed row.
func (s *Service) purgeExpired(ctx context.Context, recs []Record, now time.Time, trigger string) SweepResult {
	res := SweepResult{Trigger: trigger}
	cutoff := now.Add(-s.lifecycle.retention())
	for _, rec := range recs {
		if !s.lifecycle.IsExpired(rec, now) {
			continue
		}
		res.Scanned++
		err := s.repo.PurgeExpired(ctx, rec.ID, cutoff)
		switch {
		case err == nil:
			res.Purged++
			res.PurgedIDs = append(res.PurgedIDs, rec.ID)
			s.recordAudit(ctx, sweepActor, ActionPurge, rec.ID, map[string]any{
				"trigger":    trigger,
				"deleted_at": rec.Deletion.At.UTC().Format(time.RFC3339),
				"reason":     rec.Deletion.Reason,
			})
		case errors.Is(err, shared.ErrNotFound):
			// Restored or purged by someone else since it was read.
			s.logger.Debug("sweep skipped record", slog.String("record", rec.ID))
		default:
			res.Failed++
			s.logger.Warn("sweep purge failed",
				slog.String("trigger", trigger),
				slog.String("record", rec.ID),
				slog.Any("error", err),
			)
		}
	}
	s.countPurged(trigger, res.Purged)
	return res
}
