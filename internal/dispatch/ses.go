package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foxzi/campaignd/internal/config"
	"github.com/foxzi/campaignd/internal/jobs"
	"github.com/foxzi/campaignd/internal/metrics"
	"github.com/foxzi/campaignd/internal/recipients"
	"github.com/foxzi/campaignd/internal/render"
	"github.com/foxzi/campaignd/internal/sendlog"
)

// SESParams are the per-job inputs of one transactional send run. Zero
// values fall back to the configured defaults.
type SESParams struct {
	CSVPath         string
	AttachmentPath  string
	SubjectTemplate string
	FromEmail       string
	ConfigSet       string
	Template        string // built-in HTML document name
}

// SESWorker sends one personalized message per recipient through SES.
type SESWorker struct {
	sender   RawSender
	registry *jobs.Registry
	metrics  *metrics.Metrics
	log      *sendlog.Log
	cfg      config.SESConfig
	logger   *slog.Logger
}

// NewSESWorker creates a transactional dispatch worker. log may be nil.
func NewSESWorker(sender RawSender, registry *jobs.Registry, m *metrics.Metrics, log *sendlog.Log, cfg config.SESConfig, logger *slog.Logger) *SESWorker {
	return &SESWorker{
		sender:   sender,
		registry: registry,
		metrics:  m,
		log:      log,
		cfg:      cfg,
		logger:   logger.With("component", "ses_worker"),
	}
}

// Run executes one send job to completion. All failure paths end in an
// updated job record; a panic converts the job to failed instead of taking
// the process down.
func (w *SESWorker) Run(ctx context.Context, jobID string, p SESParams) {
	logger := w.logger.With("job_id", jobID)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("worker panicked", "panic", r)
			failJob(w.registry, jobID, "send", fmt.Errorf("worker panic: %v", r))
		}
	}()

	w.registry.Update(jobID, func(j *jobs.Job) { j.Status = jobs.StatusRunning })

	if p.SubjectTemplate == "" {
		p.SubjectTemplate = w.cfg.SubjectTemplate
	}
	if p.FromEmail == "" {
		p.FromEmail = w.cfg.FromEmail
	}
	if p.ConfigSet == "" {
		p.ConfigSet = w.cfg.ConfigSet
	}
	if p.Template == "" {
		p.Template = w.cfg.Template
	}

	html, err := render.Template(p.Template)
	if err != nil {
		logger.Error("template lookup failed", "error", err)
		failJob(w.registry, jobID, "render", err)
		return
	}

	rows, err := recipients.Load(p.CSVPath)
	if err != nil {
		logger.Error("failed to read recipient csv", "error", err)
		failJob(w.registry, jobID, "read_csv", err)
		return
	}
	w.registry.Update(jobID, func(j *jobs.Job) { j.Total = len(rows) })

	attachment, err := loadAttachment(p.AttachmentPath)
	if err != nil {
		logger.Error("failed to read attachment", "error", err)
		failJob(w.registry, jobID, "read_attachment", err)
		return
	}
	images := loadInlineImages(w.cfg.InlineImages)

	logger.Info("dispatch started", "total", len(rows), "from", p.FromEmail, "config_set", p.ConfigSet)

	sem := make(chan struct{}, w.cfg.Concurrency)
	var wg sync.WaitGroup

	for i, row := range rows {
		sem <- struct{}{}
		wg.Add(1)

		go func(row recipients.Recipient) {
			defer func() {
				<-sem
				wg.Done()
			}()
			w.sendOne(ctx, jobID, row, p, html, images, attachment)
		}(row)

		// Self-imposed pacing against SES burst limits, keyed on
		// submissions rather than completions.
		if (i+1)%w.cfg.ThrottleEvery == 0 {
			time.Sleep(w.cfg.ThrottlePause)
		}
	}

	wg.Wait()

	w.registry.Update(jobID, func(j *jobs.Job) { j.Status = jobs.StatusCompleted })
	job, _ := w.registry.Get(jobID)
	logger.Info("dispatch completed", "total", job.Total, "successes", job.Successes, "failures", job.Failures)
}

func (w *SESWorker) sendOne(ctx context.Context, jobID string, row recipients.Recipient, p SESParams, html string, images []render.Attachment, attachment *render.Attachment) {
	if row.Email == "" {
		w.recordFailure(jobID, "(no email)", "missing email")
		return
	}

	vars := render.Vars(row, w.cfg.Variables)
	msg := &render.Message{
		From:         p.FromEmail,
		To:           row.Email,
		Subject:      render.Render(p.SubjectTemplate, vars),
		HTML:         render.Render(html, vars),
		InlineImages: images,
		Attachment:   attachment,
	}

	msgID, err := w.sender.SendRaw(ctx, p.FromEmail, row.Email, render.BuildRaw(msg), p.ConfigSet)
	if err != nil {
		w.logger.Debug("send failed", "job_id", jobID, "email", row.Email, "error", err)
		w.recordFailure(jobID, row.Email, err.Error())
		return
	}

	w.registry.Update(jobID, func(j *jobs.Job) {
		j.Processed++
		j.Successes++
	})
	w.metrics.MessagesSentTotal.WithLabelValues("ses").Inc()
	if err := w.log.Record(jobID, sendlog.Entry{Ref: row.Email, Provider: "ses", Status: sendlog.StatusSent, MessageID: msgID}); err != nil {
		w.logger.Warn("sendlog write failed", "job_id", jobID, "error", err)
	}
}

func (w *SESWorker) recordFailure(jobID, ref, message string) {
	w.registry.Update(jobID, func(j *jobs.Job) {
		j.Processed++
		j.Failures++
		j.Errors = append(j.Errors, jobs.JobError{Ref: ref, Stage: "send", Message: message})
	})
	w.metrics.MessagesFailedTotal.WithLabelValues("ses").Inc()
	if err := w.log.Record(jobID, sendlog.Entry{Ref: ref, Provider: "ses", Status: sendlog.StatusFailed, Error: message}); err != nil {
		w.logger.Warn("sendlog write failed", "job_id", jobID, "error", err)
	}
}
