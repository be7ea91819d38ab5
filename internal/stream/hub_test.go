package stream

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/huangsam/xray/internal/contract"
	"github.com/huangsam/xray/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func progress(stage int, msg string, p float64) schema.Event {
	return schema.Event{Type: schema.EventProgress, Stage: stage, TotalStages: schema.TotalStages, Message: msg, Progress: p}
}

func partial(stage int, commits int) schema.Event {
	result := schema.NewAnalysisResult("https://github.com/acme/billing", "acme/billing", 6)
	result.TotalCommits = commits
	return schema.Event{Type: schema.EventPartialResult, Stage: stage, TotalStages: schema.TotalStages, Progress: 1, Data: result}
}

// drain reads every queued event until the channel is closed.
func drain(sub *Subscription) []schema.Event {
	var out []schema.Event
	for ev := range sub.C {
		out = append(out, ev)
	}
	return out
}

func types(events []schema.Event) []schema.EventType {
	out := make([]schema.EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestHub_LiveEventsInOrder(t *testing.T) {
	h := NewHub()
	h.Open("job1")
	sub, err := h.Subscribe("job1")
	require.NoError(t, err)

	h.Publish("job1", progress(1, "Cloning", 0.5))
	h.Publish("job1", partial(2, 10))
	h.Publish("job1", schema.Event{Type: schema.EventComplete, Stage: 5, Progress: 1, Data: partial(5, 10).Data})

	got := drain(sub)
	assert.Equal(t, []schema.EventType{schema.EventProgress, schema.EventPartialResult, schema.EventComplete}, types(got))
	assert.Equal(t, 0, h.Subscribers("job1"), "terminal events detach subscribers")
}

func TestHub_SubscribeUnknownJob(t *testing.T) {
	h := NewHub()
	_, err := h.Subscribe("missing")
	assert.ErrorIs(t, err, contract.ErrNotFound)
}

func TestHub_CatchUp(t *testing.T) {
	tests := []struct {
		name      string
		published []schema.Event
		wantType  schema.EventType
		wantStage int
		wantMsg   string
		wantOpen  bool
	}{
		{
			name:     "nothing yet",
			wantOpen: true,
		},
		{
			name:      "latest progress",
			published: []schema.Event{progress(1, "Cloning", 0.2), progress(1, "Reading history", 0.8)},
			wantType:  schema.EventProgress,
			wantStage: 1,
			wantMsg:   "Reading history",
			wantOpen:  true,
		},
		{
			name:      "snapshot carries current progress",
			published: []schema.Event{partial(2, 10), progress(3, "Analyzing 4 of 30 pull requests", 0.13)},
			wantType:  schema.EventPartialResult,
			wantStage: 3,
			wantMsg:   "Analyzing 4 of 30 pull requests",
			wantOpen:  true,
		},
		{
			name:      "terminal wins",
			published: []schema.Event{partial(2, 10), {Type: schema.EventError, Stage: 2, Message: "boom"}},
			wantType:  schema.EventError,
			wantStage: 2,
			wantMsg:   "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHub()
			h.Open("job1")
			for _, ev := range tt.published {
				h.Publish("job1", ev)
			}
			sub, err := h.Subscribe("job1")
			require.NoError(t, err)

			if tt.wantType == "" {
				assert.Empty(t, sub.C)
			} else {
				ev := <-sub.C
				assert.Equal(t, tt.wantType, ev.Type)
				assert.Equal(t, tt.wantStage, ev.Stage)
				assert.Equal(t, tt.wantMsg, ev.Message)
			}

			if tt.wantOpen {
				assert.Equal(t, 1, h.Subscribers("job1"))
				h.Unsubscribe(sub)
			}
			_, open := <-sub.C
			assert.False(t, open)
		})
	}
}

func TestHub_CatchUpKeepsSnapshotData(t *testing.T) {
	h := NewHub()
	h.Open("job1")
	h.Publish("job1", partial(2, 10))
	h.Publish("job1", partial(3, 12))
	h.Publish("job1", progress(4, "Analyzing reviews", 0.5))

	sub, err := h.Subscribe("job1")
	require.NoError(t, err)
	ev := <-sub.C
	require.NotNil(t, ev.Data)
	assert.Equal(t, 12, ev.Data.TotalCommits)
	assert.Equal(t, 4, ev.Stage)
	assert.Equal(t, 0.5, ev.Progress)
}

func TestHub_DropsOldestWhenFull(t *testing.T) {
	var dropped atomic.Int64
	h := NewHub(WithQueueSize(3), WithDropHook(func(string) { dropped.Add(1) }))
	h.Open("job1")
	sub, err := h.Subscribe("job1")
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		h.Publish("job1", progress(1, "tick", float64(i)/10))
	}
	assert.Equal(t, int64(2), sub.Dropped())
	assert.Equal(t, int64(2), dropped.Load())

	h.Publish("job1", schema.Event{Type: schema.EventComplete, Stage: 5, Progress: 1})
	got := drain(sub)
	require.Len(t, got, 3)
	assert.Equal(t, 0.4, got[0].Progress)
	assert.Equal(t, 0.5, got[1].Progress)
	assert.Equal(t, schema.EventComplete, got[2].Type, "terminal events are always enqueued")
}

func TestHub_SlowSubscriberDoesNotAffectOthers(t *testing.T) {
	h := NewHub(WithQueueSize(2))
	h.Open("job1")
	slow, err := h.Subscribe("job1")
	require.NoError(t, err)
	fast, err := h.Subscribe("job1")
	require.NoError(t, err)

	var received []schema.Event
	for i := 1; i <= 4; i++ {
		h.Publish("job1", progress(1, "tick", float64(i)/10))
		received = append(received, <-fast.C)
	}
	assert.Len(t, received, 4)
	assert.Zero(t, fast.Dropped())
	assert.Equal(t, int64(2), slow.Dropped())
}

func TestHub_IgnoresEventsAfterTerminal(t *testing.T) {
	h := NewHub()
	h.Open("job1")
	h.Publish("job1", schema.Event{Type: schema.EventError, Message: "clone failed"})
	h.Publish("job1", progress(2, "late", 0.1))

	sub, err := h.Subscribe("job1")
	require.NoError(t, err)
	got := drain(sub)
	require.Len(t, got, 1)
	assert.Equal(t, "clone failed", got[0].Message)
}

func TestHub_Remove(t *testing.T) {
	h := NewHub()
	h.Open("job1")
	sub, err := h.Subscribe("job1")
	require.NoError(t, err)

	h.Remove("job1")
	_, open := <-sub.C
	assert.False(t, open)
	assert.Equal(t, 0, h.Subscribers("job1"))

	_, err = h.Subscribe("job1")
	assert.ErrorIs(t, err, contract.ErrNotFound)

	h.Unsubscribe(sub) // Already closed
	h.Remove("job1")
}

func TestHub_ConcurrentPublishAndSubscribe(t *testing.T) {
	h := NewHub(WithQueueSize(8))
	h.Open("job1")

	var wg sync.WaitGroup
	wg.Go(func() {
		for i := range 200 {
			h.Publish("job1", progress(1+i/50, "tick", float64(i%50)/50))
		}
		h.Publish("job1", schema.Event{Type: schema.EventComplete, Stage: 5, Progress: 1})
	})
	for range 10 {
		wg.Go(func() {
			sub, err := h.Subscribe("job1")
			if !assert.NoError(t, err) {
				return
			}
			events := drain(sub)
			if assert.NotEmpty(t, events) {
				assert.Equal(t, schema.EventComplete, events[len(events)-1].Type)
			}
		})
	}
	wg.Wait()
}
