package event

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"main/internal/errors"
	"main/internal/obs"
	"main/pkg/exception"
)

func TestQueuePublishAndRun(t *testing.T) {
	q := NewQueue(4, obs.NewMetrics())

	assert.NoError(t, q.TryPublish(Event{Kind: KindJoin, ClanTag: "#AAA"}))
	assert.NoError(t, q.TryPublish(Event{Kind: KindLeave, ClanTag: "#AAA"}))
	q.Close()

	var got []Kind
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q.Run(ctx, func(e Event) { got = append(got, e.Kind) })

	assert.Equal(t, []Kind{KindJoin, KindLeave}, got)
}

func TestQueueFullDropsAndCounts(t *testing.T) {
	m := obs.NewMetrics()
	q := NewQueue(1, m)

	assert.NoError(t, q.TryPublish(Event{Kind: KindJoin}))
	assert.ErrorIs(t, q.TryPublish(Event{Kind: KindJoin}), exception.ErrQueueFull)

	q.Emit(Event{Kind: KindJoin})
	assert.Equal(t, uint64(1), m.Snapshot().QueueDrops)
}

func TestQueueClosed(t *testing.T) {
	m := obs.NewMetrics()
	q := NewQueue(1, m)
	q.Close()

	assert.ErrorIs(t, q.TryPublish(Event{}), exception.ErrQueueClosed)
	q.Emit(Event{})
	assert.Equal(t, uint64(1), m.Snapshot().QueueClosed)
}

func TestCloseDuringPublishDoesNotPanic(t *testing.T) {
	q := NewQueue(8, obs.NewMetrics())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if err := q.TryPublish(Event{Kind: KindJoin}); errors.Is(err, exception.ErrQueueClosed) {
					return
				}
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	q.Close()
	wg.Wait()
}
