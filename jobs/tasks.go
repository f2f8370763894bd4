package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBackfillReferences numbers records that still lack a reference number.
	TaskBackfillReferences = "compliance:backfill_references"
	// TaskSequenceGapReport scans issued reference numbers for holes.
	TaskSequenceGapReport = "compliance:sequence_gaps"
)

// BackfillPayload identifies who requested a backfill run. Scheduled runs
// leave it empty and are attributed to SystemActor.
type BackfillPayload struct {
	RequestedBy string `json:"requested_by,omitempty"`
}

// GapReportPayload selects the fiscal year to scan; zero means the current one.
type GapReportPayload struct {
	Year int `json:"year,omitempty"`
}

// NewBackfillTask constructs the backfill task.
func NewBackfillTask(payload BackfillPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBackfillReferences, data, asynq.Queue(QueueDefault)), nil
}

// NewGapReportTask constructs the gap report task.
func NewGapReportTask(payload GapReportPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSequenceGapReport, data, asynq.Queue(QueueDefault)), nil
}
