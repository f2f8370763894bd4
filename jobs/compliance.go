package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/gobd-ledger/internal/audit"
	"github.com/odyssey-erp/gobd-ledger/internal/compliance"
	jobmetrics "github.com/odyssey-erp/gobd-ledger/internal/jobs"
	"github.com/odyssey-erp/gobd-ledger/internal/records"
	"github.com/odyssey-erp/gobd-ledger/internal/sequence"
)

// SystemActor is stored as user id on audit entries written by scheduled runs.
const SystemActor = "system:scheduler"

// ReferenceBackfiller assigns missing reference numbers.
type ReferenceBackfiller interface {
	BackfillReferenceNumbers(ctx context.Context, actx audit.Context) (compliance.BackfillResult, error)
}

// GapReporter reports missing numbers of one counter.
type GapReporter interface {
	SequenceGaps(ctx context.Context, documentType string, year int) (sequence.GapReport, error)
}

// BackfillJob runs reference number backfills from the queue.
type BackfillJob struct {
	Service ReferenceBackfiller
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewBackfillJob constructs the job handler.
func NewBackfillJob(service ReferenceBackfiller, logger *slog.Logger, metrics *jobmetrics.Metrics) *BackfillJob {
	return &BackfillJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle executes one backfill run. A run already in progress elsewhere is not
// retried; the next schedule picks up whatever is left.
func (j *BackfillJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("backfill references: dependencies not configured")
	}
	var payload BackfillPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	actor := payload.RequestedBy
	if actor == "" {
		actor = SystemActor
	}

	tracker := j.Metrics.Track(TaskBackfillReferences)
	start := time.Now()
	result, err := j.Service.BackfillReferenceNumbers(ctx, audit.Context{UserID: actor})
	j.Metrics.AddBackfilled(string(records.KindIncome), result.Income)
	j.Metrics.AddBackfilled(string(records.KindExpense), result.Expenses)
	if errors.Is(err, compliance.ErrBackfillRunning) {
		j.log().Info("backfill skipped, another run holds the lock")
		return tracker.End(nil)
	}
	if err != nil {
		j.log().Error("backfill reference numbers", slog.String("requested_by", actor), slog.Any("error", err))
		return tracker.End(err)
	}
	j.log().Info("backfilled reference numbers",
		slog.String("requested_by", actor),
		slog.Int("income", result.Income),
		slog.Int("expenses", result.Expenses),
		slog.Duration("duration", time.Since(start)),
	)
	return tracker.End(nil)
}

func (j *BackfillJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

// GapReportJob logs holes in the reference number sequences of one year.
type GapReportJob struct {
	Service GapReporter
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewGapReportJob constructs the job handler.
func NewGapReportJob(service GapReporter, logger *slog.Logger, metrics *jobmetrics.Metrics) *GapReportJob {
	return &GapReportJob{
		Service: service,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle scans every document type for the requested year.
func (j *GapReportJob) Handle(ctx context.Context, task *asynq.Task) error {
	_, err := j.Run(ctx, task)
	return err
}

// Run is Handle with the collected reports, used by the CLI.
func (j *GapReportJob) Run(ctx context.Context, task *asynq.Task) ([]sequence.GapReport, error) {
	if j == nil || j.Service == nil {
		return nil, errors.New("sequence gap report: dependencies not configured")
	}
	var payload GapReportPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return nil, asynq.SkipRetry
		}
	}
	year := payload.Year
	if year == 0 {
		year = j.now().Year()
	}

	tracker := j.Metrics.Track(TaskSequenceGapReport)
	reports := make([]sequence.GapReport, 0, len(records.Kinds))
	for _, kind := range records.Kinds {
		documentType := kind.DocumentType()
		report, err := j.Service.SequenceGaps(ctx, documentType, year)
		if err != nil {
			j.log().Error("sequence gap report", slog.String("document_type", documentType), slog.Int("year", year), slog.Any("error", err))
			return reports, tracker.End(err)
		}
		reports = append(reports, report)
		j.Metrics.AddSequenceGaps(documentType, year, len(report.Missing))
		if len(report.Missing) > 0 {
			j.log().Warn("reference numbers missing",
				slog.String("document_type", documentType),
				slog.Int("year", year),
				slog.Int64("last_issued", report.LastIssued),
				slog.Any("missing", report.Missing),
			)
			continue
		}
		j.log().Info("reference numbers complete", slog.String("document_type", documentType), slog.Int("year", year), slog.Int64("last_issued", report.LastIssued))
	}
	return reports, tracker.End(nil)
}

func (j *GapReportJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *GapReportJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
