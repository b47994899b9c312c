package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/use-agent/pesticrawl/models"
)

// Job is one asynchronous crawl. Its fields are updated by the crawl
// goroutine while handlers read snapshots.
type Job struct {
	ID        string
	Query     string
	CreatedAt time.Time

	mu       sync.RWMutex
	status   string
	page     int
	total    int
	terminal string
	records  []models.Record
	err      *models.ErrorDetail
}

// Progress records a page-completed event.
func (j *Job) Progress(ev models.ProgressEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.page = ev.PageNumber
	j.total = ev.TotalItemsScraped
}

// Finish stores the final summary. Finished jobs are immutable.
func (j *Job) Finish(s *models.CrawlSummary) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != models.StatusProcessing {
		return
	}
	j.status = s.Status
	j.page = s.PageNumber
	j.total = s.TotalItemsScraped
	j.terminal = s.Terminal
	j.records = s.Records
}

// Fail marks the job failed with detail.
func (j *Job) Fail(detail *models.ErrorDetail) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != models.StatusProcessing {
		return
	}
	j.status = models.StatusFailed
	j.err = detail
}

// Status returns the current job status.
func (j *Job) Status() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// Snapshot returns the API view of the job. Records are only included once
// the job has finished.
func (j *Job) Snapshot() models.CrawlStatusResponse {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return models.CrawlStatusResponse{
		ID:                j.ID,
		Query:             j.Query,
		Status:            j.status,
		PageNumber:        j.page,
		TotalItemsScraped: j.total,
		Terminal:          j.terminal,
		Records:           j.records,
		Error:             j.err,
	}
}

// Store holds in-flight and finished jobs until they expire.
type Store struct {
	jobs sync.Map
	ttl  time.Duration
	now  func() time.Time
}

// NewStore creates a Store whose jobs expire ttl after creation. Expired
// jobs are swept every 5 minutes until ctx is done.
func NewStore(ctx context.Context, ttl time.Duration) *Store {
	s := &Store{ttl: ttl, now: time.Now}
	go s.cleanupLoop(ctx)
	return s
}

// Create registers a new processing job for query.
func (s *Store) Create(query string) *Job {
	job := &Job{
		ID:        "crawl-" + uuid.NewString(),
		Query:     query,
		CreatedAt: s.now(),
		status:    models.StatusProcessing,
	}
	s.jobs.Store(job.ID, job)
	return job
}

// Get looks up a job by ID.
func (s *Store) Get(id string) (*Job, bool) {
	v, ok := s.jobs.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Job), true
}

func (s *Store) evictExpired() {
	cutoff := s.now().Add(-s.ttl)
	s.jobs.Range(func(key, value any) bool {
		if value.(*Job).CreatedAt.Before(cutoff) {
			s.jobs.Delete(key)
		}
		return true
	})
}

func (s *Store) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.evictExpired()
		}
	}
}
