package iocache

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/huangsam/xray/internal/contract"
	"github.com/huangsam/xray/schema"
)

// jobIDLength is the number of uuid characters kept in a job id.
const jobIDLength = 8

// MemoryJobStore keeps jobs in process memory.
type MemoryJobStore struct {
	mu     sync.Mutex
	jobs   map[string]*schema.Job
	active map[string]string // JobKey -> id of the non-terminal job
	now    func() time.Time
}

var _ contract.JobStore = &MemoryJobStore{} // Compile-time check

// NewMemoryJobStore creates an empty store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs:   make(map[string]*schema.Job),
		active: make(map[string]string),
		now:    time.Now,
	}
}

// newID returns a short id that is not in use.
func (s *MemoryJobStore) newID() string {
	for {
		id := uuid.NewString()[:jobIDLength]
		if _, taken := s.jobs[id]; !taken {
			return id
		}
	}
}

// Create registers a queued job unless a non-terminal job exists for the same key.
func (s *MemoryJobStore) Create(repoURL, identity string, months int) (schema.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := schema.JobKey(identity, months)
	if id, ok := s.active[key]; ok {
		if job, ok := s.jobs[id]; ok && !job.Status.IsTerminal() {
			return *job, false
		}
	}

	now := s.now()
	job := &schema.Job{
		ID:           s.newID(),
		RepoURL:      repoURL,
		RepoIdentity: identity,
		MonthsWindow: months,
		Status:       schema.JobQueued,
		LastMessage:  "Queued",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.jobs[job.ID] = job
	s.active[key] = job.ID
	return *job, true
}

// Get returns a copy of the job.
func (s *MemoryJobStore) Get(id string) (schema.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return schema.Job{}, contract.ErrNotFound
	}
	return *job, nil
}

// Update applies fn to a copy of the job and commits it when the transition is forward-only.
// Terminal jobs are absorbing and stages never decrease.
func (s *MemoryJobStore) Update(id string, fn func(job *schema.Job)) (schema.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return schema.Job{}, contract.ErrNotFound
	}
	if job.Status.IsTerminal() {
		return *job, fmt.Errorf("%w: job %s is already %s", contract.ErrInvalidTransition, id, job.Status)
	}

	next := *job
	fn(&next)
	if schema.StatusRank(next.Status) < schema.StatusRank(job.Status) {
		return *job, fmt.Errorf("%w: %s -> %s", contract.ErrInvalidTransition, job.Status, next.Status)
	}
	if next.CurrentStage < job.CurrentStage {
		return *job, fmt.Errorf("%w: stage %d -> %d", contract.ErrInvalidTransition, job.CurrentStage, next.CurrentStage)
	}

	next.UpdatedAt = s.now()
	if next.Status.IsTerminal() {
		next.CompletedAt = next.UpdatedAt
		key := schema.JobKey(next.RepoIdentity, next.MonthsWindow)
		if s.active[key] == id {
			delete(s.active, key)
		}
	}
	*job = next
	return next, nil
}

// List returns copies of all jobs, oldest first.
func (s *MemoryJobStore) List() []schema.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schema.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Evict removes complete jobs last updated before cutoff and failed jobs last updated before errorCutoff.
func (s *MemoryJobStore) Evict(cutoff, errorCutoff time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var evicted []string
	for id, job := range s.jobs {
		var expired bool
		switch job.Status {
		case schema.JobComplete:
			expired = job.UpdatedAt.Before(cutoff)
		case schema.JobError:
			expired = job.UpdatedAt.Before(errorCutoff)
		}
		if expired {
			delete(s.jobs, id)
			evicted = append(evicted, id)
		}
	}
	sort.Strings(evicted)
	return evicted
}
