package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/campaignd/internal/dispatch"
	"github.com/foxzi/campaignd/internal/jobs"
	"github.com/foxzi/campaignd/internal/report"
	"github.com/foxzi/campaignd/internal/sendlog"
	"github.com/foxzi/campaignd/internal/storage"
)

const version = "0.1.0"

// JobCreatedResponse is the response for the POST /jobs/* endpoints
type JobCreatedResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// JobListResponse is the response for GET /jobs
type JobListResponse struct {
	Jobs []*jobs.Job `json:"jobs"`
}

// JobLogResponse is the response for GET /jobs/{id}/log
type JobLogResponse struct {
	Entries []sendlog.Entry `json:"entries"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status  string      `json:"status"`
	Version string      `json:"version"`
	Uptime  string      `json:"uptime"`
	Jobs    jobs.Counts `json:"jobs"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// uploadedFiles holds the stored paths of one multipart submission.
type uploadedFiles struct {
	CSVPath        string
	CSVName        string // client-supplied name, used in the job description
	AttachmentPath string
}

// parseUploads reads the multipart form and stores the csv (required) and
// attachment (optional) files. A nil return means the error response has
// already been written.
func (s *Server) parseUploads(w http.ResponseWriter, r *http.Request) *uploadedFiles {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.config.Server.MaxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.sendError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return nil
		}
		s.sendError(w, http.StatusBadRequest, "invalid multipart form")
		return nil
	}

	file, header, err := r.FormFile("csv")
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "csv file is required")
		return nil
	}
	defer file.Close()

	csvPath, err := s.dirs.SaveUpload(header.Filename, file)
	if err != nil {
		s.logger.Error("failed to store upload", "error", err)
		s.sendError(w, http.StatusInternalServerError, "failed to store upload")
		return nil
	}

	up := &uploadedFiles{CSVPath: csvPath, CSVName: header.Filename}

	att, attHeader, err := r.FormFile("attachment")
	switch {
	case err == nil:
		defer att.Close()
		up.AttachmentPath, err = s.saveOptional(attHeader.Filename, att)
		if err != nil {
			s.logger.Error("failed to store attachment", "error", err)
			s.sendError(w, http.StatusInternalServerError, "failed to store upload")
			return nil
		}
	case errors.Is(err, http.ErrMissingFile):
		// attachment is optional
	default:
		s.sendError(w, http.StatusBadRequest, "invalid attachment upload")
		return nil
	}

	return up
}

func (s *Server) saveOptional(name string, f multipart.File) (string, error) {
	return s.dirs.SaveUpload(name, f)
}

// handleCreateSESJob handles POST /api/v1/jobs/ses
func (s *Server) handleCreateSESJob(w http.ResponseWriter, r *http.Request) {
	up := s.parseUploads(w, r)
	if up == nil {
		return
	}

	params := dispatch.SESParams{
		CSVPath:         up.CSVPath,
		AttachmentPath:  up.AttachmentPath,
		SubjectTemplate: r.FormValue("subject_template"),
		FromEmail:       r.FormValue("from_email"),
		ConfigSet:       r.FormValue("config_set"),
		Template:        r.FormValue("template"),
	}

	job := s.registry.Create(jobs.TypeSESSend, fmt.Sprintf("SES send: %s", up.CSVName))
	s.metrics.JobsStartedTotal.WithLabelValues(string(jobs.TypeSESSend)).Inc()
	go s.runners.SES(context.Background(), job.ID, params)

	s.logger.Info("job submitted", "id", job.ID, "type", job.Type, "csv", up.CSVName)
	s.sendJSON(w, http.StatusAccepted, JobCreatedResponse{ID: job.ID, Status: string(job.Status)})
}

// handleCreateMsg91Job handles POST /api/v1/jobs/msg91
func (s *Server) handleCreateMsg91Job(w http.ResponseWriter, r *http.Request) {
	up := s.parseUploads(w, r)
	if up == nil {
		return
	}

	if s.config.Msg91.AuthKey == "" {
		s.sendError(w, http.StatusBadRequest, "msg91 auth key is not configured")
		return
	}

	templateID := r.FormValue("template_id")
	if templateID == "" && s.config.Msg91.TemplateID == "" {
		s.sendError(w, http.StatusBadRequest, "template_id is required")
		return
	}

	params := dispatch.Msg91Params{
		CSVPath:        up.CSVPath,
		AttachmentPath: up.AttachmentPath,
		TemplateID:     templateID,
		FromEmail:      r.FormValue("from_email"),
		Domain:         r.FormValue("domain"),
	}

	if v := r.FormValue("batch_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.sendError(w, http.StatusBadRequest, "batch_size must be a positive integer")
			return
		}
		params.BatchSize = n
	}
	if v := r.FormValue("batch_delay"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			s.sendError(w, http.StatusBadRequest, "batch_delay must be a duration like 2s")
			return
		}
		params.BatchDelay = d
	}

	job := s.registry.Create(jobs.TypeMsg91Send, fmt.Sprintf("MSG91 send: %s", up.CSVName))
	s.metrics.JobsStartedTotal.WithLabelValues(string(jobs.TypeMsg91Send)).Inc()
	go s.runners.Msg91(context.Background(), job.ID, params)

	s.logger.Info("job submitted", "id", job.ID, "type", job.Type, "csv", up.CSVName)
	s.sendJSON(w, http.StatusAccepted, JobCreatedResponse{ID: job.ID, Status: string(job.Status)})
}

// handleCreateReportJob handles POST /api/v1/jobs/report
func (s *Server) handleCreateReportJob(w http.ResponseWriter, r *http.Request) {
	up := s.parseUploads(w, r)
	if up == nil {
		return
	}

	bucket := r.FormValue("bucket")
	if bucket == "" {
		bucket = s.config.Report.Bucket
	}
	if bucket == "" {
		s.sendError(w, http.StatusBadRequest, "bucket is required")
		return
	}

	start, err := time.Parse("2006-01-02", r.FormValue("start_date"))
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "start_date must be YYYY-MM-DD")
		return
	}
	end, err := time.Parse("2006-01-02", r.FormValue("end_date"))
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "end_date must be YYYY-MM-DD")
		return
	}
	if end.Before(start) {
		s.sendError(w, http.StatusBadRequest, "end_date is before start_date")
		return
	}

	job := s.registry.Create(jobs.TypeReport, fmt.Sprintf("delivery report: %s", up.CSVName))
	s.metrics.JobsStartedTotal.WithLabelValues(string(jobs.TypeReport)).Inc()

	params := report.Params{
		Bucket:     bucket,
		Start:      start,
		End:        end,
		InputCSV:   up.CSVPath,
		OutputPath: s.dirs.OutputPath(fmt.Sprintf("report-%s.csv", job.ID)),
	}
	go s.runners.Report(context.Background(), job.ID, params)

	s.logger.Info("job submitted", "id", job.ID, "type", job.Type, "csv", up.CSVName)
	s.sendJSON(w, http.StatusAccepted, JobCreatedResponse{ID: job.ID, Status: string(job.Status)})
}

// handleGetJob handles GET /api/v1/jobs/{id}
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, ok := s.registry.Get(id)
	if !ok {
		s.sendError(w, http.StatusNotFound, "job not found")
		return
	}

	s.sendJSON(w, http.StatusOK, job)
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, JobListResponse{Jobs: s.registry.List()})
}

// handleJobLog handles GET /api/v1/jobs/{id}/log
func (s *Server) handleJobLog(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, ok := s.registry.Get(id); !ok {
		s.sendError(w, http.StatusNotFound, "job not found")
		return
	}
	if s.log == nil {
		s.sendError(w, http.StatusNotFound, "send log is disabled")
		return
	}

	entries, err := s.log.Entries(id)
	if err != nil {
		s.logger.Error("failed to read send log", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "failed to read send log")
		return
	}
	if entries == nil {
		entries = []sendlog.Entry{}
	}

	s.sendJSON(w, http.StatusOK, JobLogResponse{Entries: entries})
}

// handleDownload handles GET /api/v1/download/{name}
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" || name != storage.SanitizeName(name) {
		s.sendError(w, http.StatusBadRequest, "invalid file name")
		return
	}

	path := s.dirs.OutputPath(name)
	if _, err := os.Stat(path); err != nil {
		s.sendError(w, http.StatusNotFound, "file not found")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, path)
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: version,
		Uptime:  time.Since(s.startTime).String(),
		Jobs:    s.registry.Counts(),
	})
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}
