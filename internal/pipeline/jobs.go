package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the ingestion state of a document.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusExtracted  JobStatus = "extracted"
	StatusSplit      JobStatus = "split"
	StatusPolished   JobStatus = "polished"
	StatusEmbedded   JobStatus = "embedded"
	StatusPersisted  JobStatus = "persisted"
	StatusFailed     JobStatus = "failed"
	StatusIncomplete JobStatus = "incomplete"
)

// Terminal reports whether no further transitions follow s.
func (s JobStatus) Terminal() bool {
	return s == StatusPersisted || s == StatusFailed || s == StatusIncomplete
}

// Job tracks the state of a single asynchronous ingestion.
type Job struct {
	mu sync.Mutex

	ID          string
	FileName    string
	ContentType string
	ContentHash string

	status    JobStatus
	attempts  int
	result    *Result
	errors    []string
	createdAt time.Time
	updatedAt time.Time

	data []byte
}

// NewJob creates a queued job for doc.
func NewJob(doc Document) *Job {
	now := time.Now()
	return &Job{
		ID:          uuid.NewString(),
		FileName:    doc.FileName,
		ContentType: doc.ContentType,
		ContentHash: ContentHashHex(doc.Data),
		status:      StatusQueued,
		createdAt:   now,
		updatedAt:   now,
		data:        doc.Data,
	}
}

// Document returns the upload the job was created for.
func (j *Job) Document() Document {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Document{FileName: j.FileName, ContentType: j.ContentType, Data: j.data}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = status
	j.updatedAt = time.Now()
}

// Status returns the current status.
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// AddError records an error message.
func (j *Job) AddError(msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, msg)
	j.updatedAt = time.Now()
}

// StartAttempt counts an ingestion attempt and resets the status to queued.
func (j *Job) StartAttempt() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.attempts++
	j.status = StatusQueued
	j.updatedAt = time.Now()
	return j.attempts
}

// Finish records the outcome and releases the document bytes.
func (j *Job) Finish(res *Result, status JobStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.result = res
	j.status = status
	j.data = nil
	j.updatedAt = time.Now()
}

func (j *Job) lastUpdate() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.updatedAt
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID          string    `json:"job_id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type,omitempty"`
	ContentHash string    `json:"content_hash"`
	Status      JobStatus `json:"status"`
	Attempts    int       `json:"attempts"`
	Result      *Result   `json:"result,omitempty"`
	Errors      []string  `json:"errors"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := append([]string{}, j.errors...)
	var res *Result
	if j.result != nil {
		r := *j.result
		res = &r
	}
	return JobSnapshot{
		ID:          j.ID,
		FileName:    j.FileName,
		ContentType: j.ContentType,
		ContentHash: j.ContentHash,
		Status:      j.status,
		Attempts:    j.attempts,
		Result:      res,
		Errors:      errs,
		CreatedAt:   j.createdAt,
		UpdatedAt:   j.updatedAt,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes finished jobs idle for longer than the TTL. Jobs still in
// flight are kept.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		if job.Status().Terminal() && now.Sub(job.lastUpdate()) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// Len returns the number of tracked jobs.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// ContentHashHex returns the hex SHA-256 of data.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
