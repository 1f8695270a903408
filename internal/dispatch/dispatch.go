// Package dispatch runs the outbound send workers: one per-recipient path
// through SES and one batched path through MSG91.
package dispatch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/foxzi/campaignd/internal/jobs"
	"github.com/foxzi/campaignd/internal/render"
)

// loadAttachment reads an optional attachment file. An empty path yields nil;
// a missing file is an error so it is caught before any sends happen.
func loadAttachment(path string) (*render.Attachment, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment: %w", err)
	}
	return &render.Attachment{Filename: filepath.Base(path), Content: data}, nil
}

// loadInlineImages reads the configured inline image files. Missing files
// are skipped so a campaign still goes out when an optional banner is absent.
func loadInlineImages(paths []string) []render.Attachment {
	var imgs []render.Attachment
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		imgs = append(imgs, render.Attachment{Filename: filepath.Base(p), Content: data})
	}
	return imgs
}

// failJob marks the job failed with a staged error.
func failJob(registry *jobs.Registry, jobID, stage string, err error) {
	registry.Update(jobID, func(j *jobs.Job) {
		j.Status = jobs.StatusFailed
		j.Errors = append(j.Errors, jobs.JobError{Stage: stage, Message: err.Error()})
	})
}
