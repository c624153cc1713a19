package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/docrag/internal/pipeline"
)

// ingestRequest is the JSON upload form. Data is base64.
type ingestRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Data        string `json:"data"`
}

type jobResponse struct {
	FileName string             `json:"file_name"`
	JobID    string             `json:"job_id,omitempty"`
	Status   pipeline.JobStatus `json:"status,omitempty"`
	PollURL  string             `json:"poll_url,omitempty"`
	Error    string             `json:"error,omitempty"`
}

var errTooLarge = errors.New("file exceeds max upload size")

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.requestLimit(1))

	doc, err := s.readDocument(r)
	if err != nil {
		s.uploadError(w, err)
		return
	}

	async, _ := strconv.ParseBool(r.URL.Query().Get("async"))
	if async {
		resp, code := s.submit(doc)
		writeJSON(w, code, resp)
		return
	}

	res, err := s.deps.Ingestor.Ingest(r.Context(), doc, nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleBatchIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.requestLimit(10))

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		jsonError(w, "at least one file is required", http.StatusBadRequest)
		return
	}

	results := make([]jobResponse, 0, len(files))
	for _, fh := range files {
		doc, err := s.readPart(fh)
		if err != nil {
			results = append(results, jobResponse{FileName: sanitizeFilename(fh.Filename), Error: err.Error()})
			continue
		}
		resp, _ := s.submit(doc)
		results = append(results, resp)
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"jobs": results})
}

func (s *Server) handleIngestStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	job := s.deps.Jobs.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

// submit queues doc and reports the job with the status code to use for a
// single upload.
func (s *Server) submit(doc pipeline.Document) (jobResponse, int) {
	if s.deps.Jobs == nil {
		return jobResponse{FileName: doc.FileName, Error: "async ingestion is disabled"}, http.StatusServiceUnavailable
	}
	job, err := s.deps.Jobs.Submit(doc)
	resp := jobResponse{
		FileName: doc.FileName,
		JobID:    job.ID,
		Status:   job.Status(),
		PollURL:  fmt.Sprintf("/api/ingest/%s/status", job.ID),
	}
	if err != nil {
		resp.Error = err.Error()
		return resp, http.StatusServiceUnavailable
	}
	return resp, http.StatusAccepted
}

// readDocument accepts either a JSON body with base64 data or a multipart
// form with a "file" part.
func (s *Server) readDocument(r *http.Request) (pipeline.Document, error) {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "multipart/form-data" {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return pipeline.Document{}, errTooLarge
			}
			return pipeline.Document{}, badRequest("invalid multipart form: %v", err)
		}
		defer r.MultipartForm.RemoveAll()
		files := r.MultipartForm.File["file"]
		if len(files) == 0 {
			return pipeline.Document{}, badRequest("file is required")
		}
		doc, err := s.readPart(files[0])
		if err != nil {
			return pipeline.Document{}, err
		}
		if ct := r.FormValue("content_type"); ct != "" {
			doc.ContentType = ct
		}
		return doc, nil
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return pipeline.Document{}, errTooLarge
		}
		return pipeline.Document{}, badRequest("invalid JSON body: %v", err)
	}
	if req.FileName == "" {
		return pipeline.Document{}, badRequest("file_name is required")
	}
	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return pipeline.Document{}, badRequest("data is not valid base64: %v", err)
	}
	if int64(len(data)) > s.opts.MaxUploadBytes {
		return pipeline.Document{}, errTooLarge
	}
	return pipeline.Document{
		FileName:    sanitizeFilename(req.FileName),
		ContentType: req.ContentType,
		Data:        data,
	}, nil
}

func (s *Server) readPart(fh *multipart.FileHeader) (pipeline.Document, error) {
	if fh.Size > s.opts.MaxUploadBytes {
		return pipeline.Document{}, errTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return pipeline.Document{}, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.opts.MaxUploadBytes+1))
	if err != nil {
		return pipeline.Document{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.opts.MaxUploadBytes {
		return pipeline.Document{}, errTooLarge
	}
	return pipeline.Document{
		FileName:    sanitizeFilename(fh.Filename),
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// requestLimit bounds a request carrying n files. Base64 adds a third, plus
// room for form overhead.
func (s *Server) requestLimit(n int64) int64 {
	return n*(s.opts.MaxUploadBytes*4/3) + 1<<20
}

type badRequestError struct{ msg string }

func (e badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return badRequestError{msg: fmt.Sprintf(format, args...)}
}

func (s *Server) uploadError(w http.ResponseWriter, err error) {
	var bad badRequestError
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, errTooLarge), errors.As(err, &maxErr):
		jsonError(w, fmt.Sprintf("%s (%d bytes)", errTooLarge, s.opts.MaxUploadBytes), http.StatusRequestEntityTooLarge)
	case errors.As(err, &bad):
		jsonError(w, bad.msg, http.StatusBadRequest)
	default:
		jsonError(w, err.Error(), http.StatusBadRequest)
	}
}
