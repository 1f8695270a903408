package dispatch

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/foxzi/campaignd/internal/config"
	"github.com/foxzi/campaignd/internal/jobs"
	"github.com/foxzi/campaignd/internal/metrics"
	"github.com/foxzi/campaignd/internal/recipients"
	"github.com/foxzi/campaignd/internal/render"
	"github.com/foxzi/campaignd/internal/sendlog"
)

// Wire shapes of the MSG91 send API.
type msg91Recipient struct {
	To        []msg91Address    `json:"to"`
	Variables map[string]string `json:"variables"`
}

type msg91Address struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type msg91Attachment struct {
	File     string `json:"file"` // data:<mime>;base64,<content>
	FileName string `json:"fileName"`
}

type msg91Payload struct {
	Recipients  []msg91Recipient  `json:"recipients"`
	From        msg91Address      `json:"from"`
	Domain      string            `json:"domain"`
	TemplateID  string            `json:"template_id"`
	Attachments []msg91Attachment `json:"attachments,omitempty"`
}

// Msg91Params are the per-job inputs of one batch send run. Zero values fall
// back to the configured defaults.
type Msg91Params struct {
	CSVPath        string
	AttachmentPath string
	TemplateID     string
	FromEmail      string
	Domain         string
	BatchSize      int
	BatchDelay     time.Duration
}

// Msg91Worker sends recipients in fixed-size batches through the MSG91
// templated-email API.
type Msg91Worker struct {
	httpClient *http.Client
	registry   *jobs.Registry
	metrics    *metrics.Metrics
	log        *sendlog.Log
	cfg        config.Msg91Config
	logger     *slog.Logger
}

// NewMsg91Worker creates a batch dispatch worker. log may be nil.
func NewMsg91Worker(registry *jobs.Registry, m *metrics.Metrics, log *sendlog.Log, cfg config.Msg91Config, logger *slog.Logger) *Msg91Worker {
	return &Msg91Worker{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		registry:   registry,
		metrics:    m,
		log:        log,
		cfg:        cfg,
		logger:     logger.With("component", "msg91_worker"),
	}
}

// Run executes one batch send job to completion. All failure paths end in an
// updated job record.
func (w *Msg91Worker) Run(ctx context.Context, jobID string, p Msg91Params) {
	logger := w.logger.With("job_id", jobID)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("worker panicked", "panic", r)
			failJob(w.registry, jobID, "send", fmt.Errorf("worker panic: %v", r))
		}
	}()

	w.registry.Update(jobID, func(j *jobs.Job) { j.Status = jobs.StatusRunning })

	if p.TemplateID == "" {
		p.TemplateID = w.cfg.TemplateID
	}
	if p.FromEmail == "" {
		p.FromEmail = w.cfg.FromEmail
	}
	if p.Domain == "" {
		p.Domain = w.cfg.Domain
	}
	if p.BatchSize <= 0 {
		p.BatchSize = w.cfg.BatchSize
	}
	if p.BatchDelay <= 0 {
		p.BatchDelay = w.cfg.BatchDelay
	}

	rows, err := recipients.Load(p.CSVPath)
	if err != nil {
		logger.Error("failed to read recipient csv", "error", err)
		failJob(w.registry, jobID, "read_csv", err)
		return
	}
	w.registry.Update(jobID, func(j *jobs.Job) { j.Total = len(rows) })

	attachment, err := buildMsg91Attachment(p.AttachmentPath)
	if err != nil {
		logger.Error("failed to read attachment", "error", err)
		failJob(w.registry, jobID, "read_attachment", err)
		return
	}

	logger.Info("batch dispatch started", "total", len(rows), "batch_size", p.BatchSize, "template_id", p.TemplateID)

	var batch []msg91Recipient
	first := true
	for _, row := range rows {
		if row.Email == "" {
			w.registry.Update(jobID, func(j *jobs.Job) {
				j.Processed++
				j.Failures++
				j.Errors = append(j.Errors, jobs.JobError{Ref: "(no email)", Stage: "send", Message: "missing email"})
			})
			w.metrics.MessagesFailedTotal.WithLabelValues("msg91").Inc()
			continue
		}

		batch = append(batch, msg91Recipient{
			To: []msg91Address{{Email: row.Email, Name: row.Name}},
			Variables: map[string]string{
				"VAR1": row.Name,
				"VAR2": row.MembershipID,
				"VAR3": row.Mobile,
			},
		})

		if len(batch) >= p.BatchSize {
			if !first {
				time.Sleep(p.BatchDelay)
			}
			first = false
			w.sendBatch(ctx, jobID, batch, p, attachment)
			batch = nil
		}
	}

	if len(batch) > 0 {
		if !first {
			time.Sleep(p.BatchDelay)
		}
		w.sendBatch(ctx, jobID, batch, p, attachment)
	}

	w.registry.Update(jobID, func(j *jobs.Job) { j.Status = jobs.StatusCompleted })
	job, _ := w.registry.Get(jobID)
	logger.Info("batch dispatch completed", "total", job.Total, "successes", job.Successes, "failures", job.Failures)
}

// sendBatch posts one batch. The whole batch succeeds or fails together; a
// failed batch is recorded and the run continues with the next one.
func (w *Msg91Worker) sendBatch(ctx context.Context, jobID string, batch []msg91Recipient, p Msg91Params, attachment *msg91Attachment) {
	ref := fmt.Sprintf("batch of %d", len(batch))

	payload := msg91Payload{
		Recipients: batch,
		From:       msg91Address{Email: p.FromEmail},
		Domain:     p.Domain,
		TemplateID: p.TemplateID,
	}
	if attachment != nil {
		payload.Attachments = []msg91Attachment{*attachment}
	}

	err := w.post(ctx, payload)
	if err != nil {
		w.logger.Debug("batch failed", "job_id", jobID, "size", len(batch), "error", err)
		w.registry.Update(jobID, func(j *jobs.Job) {
			j.Processed += len(batch)
			j.Failures += len(batch)
			j.Errors = append(j.Errors, jobs.JobError{Ref: ref, Stage: "send", Message: err.Error()})
		})
		w.metrics.MessagesFailedTotal.WithLabelValues("msg91").Add(float64(len(batch)))
		if err := w.log.Record(jobID, sendlog.Entry{Ref: ref, Provider: "msg91", Status: sendlog.StatusFailed, Error: err.Error()}); err != nil {
			w.logger.Warn("sendlog write failed", "job_id", jobID, "error", err)
		}
		return
	}

	w.registry.Update(jobID, func(j *jobs.Job) {
		j.Processed += len(batch)
		j.Successes += len(batch)
	})
	w.metrics.MessagesSentTotal.WithLabelValues("msg91").Add(float64(len(batch)))
	if err := w.log.Record(jobID, sendlog.Entry{Ref: ref, Provider: "msg91", Status: sendlog.StatusSent}); err != nil {
		w.logger.Warn("sendlog write failed", "job_id", jobID, "error", err)
	}
}

func (w *Msg91Worker) post(ctx context.Context, payload msg91Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("authkey", w.cfg.AuthKey)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Keep only a body prefix; MSG91 error pages can be large.
		prefix, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, prefix)
	}
	return nil
}

// buildMsg91Attachment encodes a file as the data-URI attachment object the
// MSG91 API expects. An empty path yields nil.
func buildMsg91Attachment(path string) (*msg91Attachment, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment: %w", err)
	}

	name := filepath.Base(path)
	return &msg91Attachment{
		File:     fmt.Sprintf("data:%s;base64,%s", render.ContentType(name), base64.StdEncoding.EncodeToString(data)),
		FileName: name,
	}, nil
}
