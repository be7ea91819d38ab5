package iocache

import (
	"sync"
	"testing"
	"time"

	"github.com/huangsam/xray/internal/contract"
	"github.com/huangsam/xray/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestJobStore returns a store with a controllable clock.
func newTestJobStore(start time.Time) (*MemoryJobStore, *time.Time) {
	store := NewMemoryJobStore()
	now := start
	store.now = func() time.Time { return now }
	return store, &now
}

func TestMemoryJobStore_CreateSingleFlight(t *testing.T) {
	store, _ := newTestJobStore(time.Unix(1000, 0))

	first, created := store.Create("https://github.com/acme/billing", "acme/billing", 6)
	require.True(t, created)
	assert.Len(t, first.ID, jobIDLength)
	assert.Equal(t, schema.JobQueued, first.Status)
	assert.Equal(t, "Queued", first.LastMessage)

	dup, created := store.Create("git@github.com:acme/billing.git", "acme/billing", 6)
	assert.False(t, created)
	assert.Equal(t, first.ID, dup.ID)

	other, created := store.Create("https://github.com/acme/billing", "acme/billing", 12)
	assert.True(t, created, "a different window is a different job")
	assert.NotEqual(t, first.ID, other.ID)

	_, err := store.Update(first.ID, func(j *schema.Job) { j.Status = schema.JobRunning })
	require.NoError(t, err)
	dup, created = store.Create("https://github.com/acme/billing", "acme/billing", 6)
	assert.False(t, created, "running jobs are still shared")
	assert.Equal(t, first.ID, dup.ID)

	_, err = store.Update(first.ID, func(j *schema.Job) { j.Status = schema.JobComplete })
	require.NoError(t, err)
	fresh, created := store.Create("https://github.com/acme/billing", "acme/billing", 6)
	assert.True(t, created, "terminal jobs release the key")
	assert.NotEqual(t, first.ID, fresh.ID)
}

func TestMemoryJobStore_ConcurrentCreate(t *testing.T) {
	store := NewMemoryJobStore()

	ids := make([]string, 32)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Go(func() {
			job, _ := store.Create("https://github.com/acme/billing", "acme/billing", 6)
			ids[i] = job.ID
		})
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Len(t, store.List(), 1)
}

func TestMemoryJobStore_UpdateForwardOnly(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(j *schema.Job)
		update  func(j *schema.Job)
		wantErr bool
	}{
		{
			name:   "queued to running",
			update: func(j *schema.Job) { j.Status = schema.JobRunning; j.CurrentStage = schema.StageIngestion },
		},
		{
			name:   "stage advances",
			setup:  func(j *schema.Job) { j.Status = schema.JobRunning; j.CurrentStage = schema.StageStats },
			update: func(j *schema.Job) { j.CurrentStage = schema.StageCode },
		},
		{
			name:   "progress within a stage",
			setup:  func(j *schema.Job) { j.Status = schema.JobRunning; j.CurrentStage = schema.StageCode },
			update: func(j *schema.Job) { j.StageProgress = 0.5; j.LastMessage = "Classified 15 of 30" },
		},
		{
			name:    "running back to queued",
			setup:   func(j *schema.Job) { j.Status = schema.JobRunning },
			update:  func(j *schema.Job) { j.Status = schema.JobQueued },
			wantErr: true,
		},
		{
			name:    "stage regresses",
			setup:   func(j *schema.Job) { j.Status = schema.JobRunning; j.CurrentStage = schema.StageReview },
			update:  func(j *schema.Job) { j.CurrentStage = schema.StageStats },
			wantErr: true,
		},
		{
			name:    "complete is absorbing",
			setup:   func(j *schema.Job) { j.Status = schema.JobComplete },
			update:  func(j *schema.Job) { j.LastMessage = "again" },
			wantErr: true,
		},
		{
			name:    "error is absorbing",
			setup:   func(j *schema.Job) { j.Status = schema.JobError },
			update:  func(j *schema.Job) { j.Status = schema.JobComplete },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newTestJobStore(time.Unix(1000, 0))
			job, _ := store.Create("https://github.com/acme/billing", "acme/billing", 6)
			if tt.setup != nil {
				_, err := store.Update(job.ID, tt.setup)
				require.NoError(t, err)
			}
			before, err := store.Get(job.ID)
			require.NoError(t, err)

			_, err = store.Update(job.ID, tt.update)
			if tt.wantErr {
				assert.ErrorIs(t, err, contract.ErrInvalidTransition)
				after, getErr := store.Get(job.ID)
				require.NoError(t, getErr)
				assert.Equal(t, before, after, "rejected updates leave the job untouched")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMemoryJobStore_UpdateTimestamps(t *testing.T) {
	store, now := newTestJobStore(time.Unix(1000, 0))
	job, _ := store.Create("https://github.com/acme/billing", "acme/billing", 6)

	*now = time.Unix(1010, 0)
	running, err := store.Update(job.ID, func(j *schema.Job) { j.Status = schema.JobRunning })
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1010, 0), running.UpdatedAt)
	assert.True(t, running.CompletedAt.IsZero())

	*now = time.Unix(1020, 0)
	done, err := store.Update(job.ID, func(j *schema.Job) { j.Status = schema.JobComplete })
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1020, 0), done.CompletedAt)
	assert.Equal(t, time.Unix(1000, 0), done.CreatedAt)
}

func TestMemoryJobStore_GetReturnsCopy(t *testing.T) {
	store := NewMemoryJobStore()
	job, _ := store.Create("https://github.com/acme/billing", "acme/billing", 6)

	got, err := store.Get(job.ID)
	require.NoError(t, err)
	got.Status = schema.JobError

	again, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.JobQueued, again.Status)

	_, err = store.Get("nope")
	assert.ErrorIs(t, err, contract.ErrNotFound)
	_, err = store.Update("nope", func(*schema.Job) {})
	assert.ErrorIs(t, err, contract.ErrNotFound)
}

func TestMemoryJobStore_ListAndEvict(t *testing.T) {
	store, now := newTestJobStore(time.Unix(1000, 0))
	old, _ := store.Create("https://github.com/acme/old", "acme/old", 6)
	*now = time.Unix(2000, 0)
	running, _ := store.Create("https://github.com/acme/running", "acme/running", 6)
	*now = time.Unix(3000, 0)
	recent, _ := store.Create("https://github.com/acme/recent", "acme/recent", 6)

	list := store.List()
	require.Len(t, list, 3)
	assert.Equal(t, []string{old.ID, running.ID, recent.ID}, []string{list[0].ID, list[1].ID, list[2].ID})

	*now = time.Unix(1100, 0)
	_, err := store.Update(old.ID, func(j *schema.Job) { j.Status = schema.JobError; j.ErrorMessage = "clone failed" })
	require.NoError(t, err)
	*now = time.Unix(3100, 0)
	_, err = store.Update(recent.ID, func(j *schema.Job) { j.Status = schema.JobComplete })
	require.NoError(t, err)
	_, err = store.Update(running.ID, func(j *schema.Job) { j.Status = schema.JobRunning })
	require.NoError(t, err)

	evicted := store.Evict(time.Unix(3050, 0), time.Unix(3050, 0))
	assert.Equal(t, []string{old.ID}, evicted, "running and recent jobs survive")

	_, err = store.Get(old.ID)
	assert.ErrorIs(t, err, contract.ErrNotFound)
	assert.Len(t, store.List(), 2)
}

func TestMemoryJobStore_EvictFailedSooner(t *testing.T) {
	store, now := newTestJobStore(time.Unix(1000, 0))
	done, _ := store.Create("https://github.com/acme/done", "acme/done", 6)
	failed, _ := store.Create("https://github.com/acme/failed", "acme/failed", 6)
	_, err := store.Update(done.ID, func(j *schema.Job) { j.Status = schema.JobComplete })
	require.NoError(t, err)
	_, err = store.Update(failed.ID, func(j *schema.Job) { j.Status = schema.JobError; j.ErrorMessage = "clone failed" })
	require.NoError(t, err)

	*now = time.Unix(2000, 0)
	evicted := store.Evict(time.Unix(500, 0), time.Unix(1500, 0))
	assert.Equal(t, []string{failed.ID}, evicted, "only the failed job is past its cutoff")

	_, err = store.Get(done.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{done.ID}, store.Evict(time.Unix(1500, 0), time.Unix(1500, 0)))
	assert.Empty(t, store.List())
}
