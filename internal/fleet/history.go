package fleet

import (
	"context"

	"transconecta.io/internal/obs"
)

// RecordHistory appends a history event and only logs a failure: history is
// an audit trail and never decides the outcome of the transition it describes.
func RecordHistory(ctx context.Context, tx HistoryRepo, subject Subject, subjectID int64, description string) {
	if err := tx.AppendHistory(ctx, subject, subjectID, description); err != nil {
		obs.Warn("history append failed", map[string]any{
			"subject":    string(subject),
			"subject_id": subjectID,
			"error":      err.Error(),
		})
	}
}
