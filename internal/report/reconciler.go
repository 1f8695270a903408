package report

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/foxzi/campaignd/internal/jobs"
	"github.com/foxzi/campaignd/internal/metrics"
	"github.com/foxzi/campaignd/internal/recipients"
	"github.com/foxzi/campaignd/internal/storage"
)

// reportHeader is the fixed 7-column output layout.
var reportHeader = []string{"Email", "Name", "Membership ID", "Mobile", "Status", "Message ID", "Error"}

// noEvent is the synthetic status for recipients absent from the scan.
var noEvent = Event{Kind: KindUnknown, MessageID: "", Diagnostic: "No event data"}

// Params are the inputs of one reconciliation run.
type Params struct {
	Bucket     string
	Start      time.Time // inclusive, day granularity
	End        time.Time // inclusive
	InputCSV   string
	OutputPath string
}

// Reconciler scans day-partitioned event logs and joins them against a
// recipient list.
type Reconciler struct {
	store      storage.ObjectStore
	registry   *jobs.Registry
	metrics    *metrics.Metrics
	prefixRoot string
	logger     *slog.Logger
}

// NewReconciler creates a reconciler reading logs under prefixRoot/YYYY/MM/DD/.
func NewReconciler(store storage.ObjectStore, registry *jobs.Registry, m *metrics.Metrics, prefixRoot string, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:      store,
		registry:   registry,
		metrics:    m,
		prefixRoot: prefixRoot,
		logger:     logger.With("component", "reconciler"),
	}
}

// DayPrefixes enumerates one zero-padded storage prefix per calendar day in
// [start, end] inclusive.
func DayPrefixes(root string, start, end time.Time) []string {
	var prefixes []string
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		prefixes = append(prefixes, fmt.Sprintf("%s/%s/", root, day.Format("2006/01/02")))
	}
	return prefixes
}

// Run executes one reconciliation job to completion, recording progress and
// outcome in the registry. It never returns an error to the caller; all
// failure paths end in a failed job record.
func (r *Reconciler) Run(ctx context.Context, jobID string, p Params) {
	logger := r.logger.With("job_id", jobID)
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("reconciler panicked", "panic", rec)
			r.fail(jobID, "scan", fmt.Errorf("worker panic: %v", rec))
		}
	}()

	r.registry.Update(jobID, func(j *jobs.Job) { j.Status = jobs.StatusRunning })

	recs, err := recipients.Load(p.InputCSV)
	if err != nil {
		logger.Error("failed to read recipient csv", "error", err)
		r.fail(jobID, "read_csv", err)
		return
	}
	r.registry.Update(jobID, func(j *jobs.Job) { j.Total = len(recs) })

	events, err := r.scan(ctx, jobID, p)
	if err != nil {
		logger.Error("event scan failed", "error", err)
		r.fail(jobID, "scan", err)
		return
	}

	if err := r.write(p.OutputPath, recs, events); err != nil {
		logger.Error("failed to write report", "path", p.OutputPath, "error", err)
		r.fail(jobID, "write_report", err)
		return
	}

	r.registry.Update(jobID, func(j *jobs.Job) {
		j.Status = jobs.StatusCompleted
		j.Processed = len(recs)
		j.Successes = len(recs)
		j.OutputPath = p.OutputPath
	})
	logger.Info("report generated", "recipients", len(recs), "output", p.OutputPath)
}

// scan walks every day prefix and aggregates events per recipient address.
// An unreadable object is recorded and skipped; a listing failure aborts.
func (r *Reconciler) scan(ctx context.Context, jobID string, p Params) (map[string][]Event, error) {
	events := make(map[string][]Event)

	for _, prefix := range DayPrefixes(r.prefixRoot, p.Start, p.End) {
		keys, err := r.store.List(ctx, p.Bucket, prefix)
		if err != nil {
			return nil, err
		}

		for _, key := range keys {
			if err := r.scanObject(ctx, p.Bucket, key, events); err != nil {
				r.logger.Warn("skipping unreadable object", "key", key, "error", err)
				r.registry.Update(jobID, func(j *jobs.Job) {
					j.Errors = append(j.Errors, jobs.JobError{Ref: key, Stage: "scan", Message: err.Error()})
				})
			}
		}
	}

	return events, nil
}

func (r *Reconciler) scanObject(ctx context.Context, bucket, key string, events map[string][]Event) error {
	body, err := r.store.Get(ctx, bucket, key)
	if err != nil {
		return err
	}
	defer body.Close()
	r.metrics.ReportObjectsTotal.Inc()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		addrs, ev, ok := ParseLine(line)
		if !ok {
			r.metrics.ReportLinesSkippedTotal.Inc()
			continue
		}

		r.metrics.ReportEventsTotal.WithLabelValues(string(ev.Kind)).Inc()
		for _, addr := range addrs {
			events[addr] = append(events[addr], ev)
		}
	}
	return scanner.Err()
}

// write emits one row per recipient in input order. The output carries a
// UTF-8 BOM so spreadsheet tools open it correctly.
func (r *Reconciler) write(path string, recs []recipients.Recipient, events map[string][]Event) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString("\uFEFF"); err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if err := w.Write(reportHeader); err != nil {
		return err
	}

	for _, rec := range recs {
		list, ok := events[rec.Key()]
		best := noEvent
		if ok && len(list) > 0 {
			best = Best(list)
		}
		row := []string{rec.Email, rec.Name, rec.MembershipID, rec.Mobile, string(best.Kind), best.MessageID, best.Diagnostic}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return f.Close()
}

func (r *Reconciler) fail(jobID, stage string, err error) {
	r.registry.Update(jobID, func(j *jobs.Job) {
		j.Status = jobs.StatusFailed
		j.Errors = append(j.Errors, jobs.JobError{Stage: stage, Message: err.Error()})
	})
}
