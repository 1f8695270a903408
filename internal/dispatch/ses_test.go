package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/foxzi/campaignd/internal/config"
	"github.com/foxzi/campaignd/internal/jobs"
	"github.com/foxzi/campaignd/internal/metrics"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	raws  map[string][]byte
	errs  map[string]error // per-recipient failures
	msgID int
}

func newFakeSender() *fakeSender {
	return &fakeSender{raws: make(map[string][]byte), errs: make(map[string]error)}
}

func (f *fakeSender) SendRaw(_ context.Context, _, to string, raw []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[to]; ok {
		return "", err
	}
	f.sent = append(f.sent, to)
	f.raws[to] = raw
	f.msgID++
	return "msg-" + to, nil
}

func testSESConfig() config.SESConfig {
	return config.SESConfig{
		FromEmail:       "sender@example.org",
		SubjectTemplate: "Hello {{Name}}",
		Concurrency:     4,
		ThrottleEvery:   100,
		ThrottlePause:   time.Millisecond,
	}
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recipients.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write csv: %v", err)
	}
	return path
}

func waitTerminal(t *testing.T, registry *jobs.Registry, id string) jobs.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := registry.Get(id)
		if !ok {
			t.Fatalf("job %s disappeared", id)
		}
		if job.Status.Terminal() {
			return *job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never finished", id)
	return jobs.Job{}
}

func TestSESWorkerSendsAllRecipients(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := jobs.NewRegistry(time.Hour, logger)
	sender := newFakeSender()
	worker := NewSESWorker(sender, registry, metrics.New(), nil, testSESConfig(), logger)

	csv := writeCSV(t, "Email,Name,MembershipID\nalice@example.org,Alice,M-1\nbob@example.org,Bob,M-2\n")
	job := registry.Create(jobs.TypeSESSend, "test send")

	worker.Run(context.Background(), job.ID, SESParams{CSVPath: csv})

	got := waitTerminal(t, registry, job.ID)
	if got.Status != jobs.StatusCompleted {
		t.Fatalf("Status = %s, want %s", got.Status, jobs.StatusCompleted)
	}
	if got.Total != 2 || got.Processed != 2 || got.Successes != 2 || got.Failures != 0 {
		t.Errorf("counts = %d/%d/%d/%d, want 2/2/2/0", got.Total, got.Processed, got.Successes, got.Failures)
	}
	if len(sender.sent) != 2 {
		t.Errorf("sent %d messages, want 2", len(sender.sent))
	}
	raw := string(sender.raws["alice@example.org"])
	if !strings.Contains(raw, "Subject: Hello Alice") {
		t.Errorf("raw message missing rendered subject:\n%s", raw)
	}
	if !strings.Contains(raw, "M-1") {
		t.Errorf("raw message missing rendered membership id")
	}
}

func TestSESWorkerRecordsPerRecipientFailures(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := jobs.NewRegistry(time.Hour, logger)
	sender := newFakeSender()
	sender.errs["bad@example.org"] = errors.New("mailbox rejected")
	worker := NewSESWorker(sender, registry, metrics.New(), nil, testSESConfig(), logger)

	csv := writeCSV(t, "Email,Name\ngood@example.org,Good\nbad@example.org,Bad\n")
	job := registry.Create(jobs.TypeSESSend, "test send")

	worker.Run(context.Background(), job.ID, SESParams{CSVPath: csv})

	got := waitTerminal(t, registry, job.ID)
	if got.Status != jobs.StatusCompleted {
		t.Fatalf("Status = %s, want %s (partial failure is not a job failure)", got.Status, jobs.StatusCompleted)
	}
	if got.Successes != 1 || got.Failures != 1 {
		t.Errorf("successes/failures = %d/%d, want 1/1", got.Successes, got.Failures)
	}
	if len(got.Errors) != 1 {
		t.Fatalf("len(Errors) = %d, want 1", len(got.Errors))
	}
	if got.Errors[0].Ref != "bad@example.org" || got.Errors[0].Message != "mailbox rejected" {
		t.Errorf("error = %+v, want ref bad@example.org message %q", got.Errors[0], "mailbox rejected")
	}
}

func TestSESWorkerMissingEmailRowsFail(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := jobs.NewRegistry(time.Hour, logger)
	sender := newFakeSender()
	worker := NewSESWorker(sender, registry, metrics.New(), nil, testSESConfig(), logger)

	csv := writeCSV(t, "Email,Name\nok@example.org,OK\n,Nameless\n")
	job := registry.Create(jobs.TypeSESSend, "test send")

	worker.Run(context.Background(), job.ID, SESParams{CSVPath: csv})

	got := waitTerminal(t, registry, job.ID)
	if got.Successes != 1 || got.Failures != 1 {
		t.Fatalf("successes/failures = %d/%d, want 1/1", got.Successes, got.Failures)
	}
	if got.Errors[0].Message != "missing email" {
		t.Errorf("error message = %q, want %q", got.Errors[0].Message, "missing email")
	}
	if len(sender.sent) != 1 {
		t.Errorf("sent %d messages, want 1", len(sender.sent))
	}
}

func TestSESWorkerBadCSVFailsJob(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := jobs.NewRegistry(time.Hour, logger)
	worker := NewSESWorker(newFakeSender(), registry, metrics.New(), nil, testSESConfig(), logger)

	job := registry.Create(jobs.TypeSESSend, "test send")
	worker.Run(context.Background(), job.ID, SESParams{CSVPath: filepath.Join(t.TempDir(), "missing.csv")})

	got := waitTerminal(t, registry, job.ID)
	if got.Status != jobs.StatusFailed {
		t.Fatalf("Status = %s, want %s", got.Status, jobs.StatusFailed)
	}
	if len(got.Errors) != 1 || got.Errors[0].Stage != "read_csv" {
		t.Errorf("errors = %+v, want single read_csv error", got.Errors)
	}
}

func TestSESWorkerUnknownTemplateFailsJob(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := jobs.NewRegistry(time.Hour, logger)
	worker := NewSESWorker(newFakeSender(), registry, metrics.New(), nil, testSESConfig(), logger)

	csv := writeCSV(t, "Email\na@example.org\n")
	job := registry.Create(jobs.TypeSESSend, "test send")
	worker.Run(context.Background(), job.ID, SESParams{CSVPath: csv, Template: "nope"})

	got := waitTerminal(t, registry, job.ID)
	if got.Status != jobs.StatusFailed {
		t.Fatalf("Status = %s, want %s", got.Status, jobs.StatusFailed)
	}
	if got.Errors[0].Stage != "render" {
		t.Errorf("Stage = %q, want render", got.Errors[0].Stage)
	}
}

func TestSESWorkerMissingAttachmentFailsJob(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := jobs.NewRegistry(time.Hour, logger)
	sender := newFakeSender()
	worker := NewSESWorker(sender, registry, metrics.New(), nil, testSESConfig(), logger)

	csv := writeCSV(t, "Email\na@example.org\n")
	job := registry.Create(jobs.TypeSESSend, "test send")
	worker.Run(context.Background(), job.ID, SESParams{
		CSVPath:        csv,
		AttachmentPath: filepath.Join(t.TempDir(), "missing.pdf"),
	})

	got := waitTerminal(t, registry, job.ID)
	if got.Status != jobs.StatusFailed {
		t.Fatalf("Status = %s, want %s", got.Status, jobs.StatusFailed)
	}
	if got.Errors[0].Stage != "read_attachment" {
		t.Errorf("Stage = %q, want read_attachment", got.Errors[0].Stage)
	}
	if len(sender.sent) != 0 {
		t.Errorf("sent %d messages before attachment check, want 0", len(sender.sent))
	}
}
