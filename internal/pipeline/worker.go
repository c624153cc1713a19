package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/dgallion1/docrag/internal/ragerr"
)

// process ingests one job, retrying the whole document after retryable
// upstream failures. Partial persistence is never retried: an incomplete
// job is reported as such.
func (o *Orchestrator) process(ctx context.Context, job *Job) {
	log := o.log.With("job_id", job.ID, "file_name", job.FileName)
	start := time.Now()
	doc := job.Document()
	// Terminal states are set by Finish together with the result.
	track := func(s JobStatus) {
		if !s.Terminal() {
			job.SetStatus(s)
		}
	}

	var (
		res Result
		err error
	)
	for attempt := 0; ; attempt++ {
		n := job.StartAttempt()
		res, err = o.ingestor.Ingest(ctx, doc, track)
		if err == nil || attempt >= o.cfg.Retries || !ragerr.IsRetryable(err) || errors.Is(err, ragerr.ErrIncomplete) {
			break
		}
		job.AddError(err.Error())
		wait := o.backoff(attempt)
		log.Warn("retryable ingestion error", "attempt", n, "retry_in", wait, "error", err)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			err = ctx.Err()
		}
		if ctx.Err() != nil {
			break
		}
	}

	status := StatusPersisted
	switch {
	case err == nil:
		job.Finish(&res, status)
		log.Info("job completed", "parents", res.Parents, "children", res.Children)
	case errors.Is(err, ragerr.ErrIncomplete):
		status = StatusIncomplete
		job.AddError(err.Error())
		job.Finish(nil, status)
	default:
		status = StatusFailed
		job.AddError(err.Error())
		job.Finish(nil, status)
	}

	if o.recorder != nil {
		o.recorder.RecordIngest(ctx, string(status), time.Since(start))
	}
}
