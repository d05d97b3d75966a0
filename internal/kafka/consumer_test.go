package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeReader struct {
	mu     sync.Mutex
	queue  []kafka.Message
	events []string
	closed bool
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.queue) > 0 {
		m := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		f.record("commit %d/%d", m.Partition, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeReader) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, fmt.Sprintf(format, args...))
}

func (f *fakeReader) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *fakeReader) commits() int {
	n := 0
	for _, e := range f.snapshot() {
		if len(e) > 6 && e[:6] == "commit" {
			n++
		}
	}
	return n
}

func startConsumer(t *testing.T, r *fakeReader, workers int, h Handler) {
	t.Helper()
	c := newConsumer(r, workers, zap.NewNop())
	c.backoff = func(int) time.Duration { return time.Millisecond }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, h) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
}

func TestFailedMessageIsRetriedBeforeLaterOffsetCommits(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{
		{Partition: 0, Offset: 5},
		{Partition: 0, Offset: 6},
	}}
	fails := 2
	startConsumer(t, r, 4, func(_ context.Context, m kafka.Message) error {
		r.record("handle %d/%d", m.Partition, m.Offset)
		if m.Offset == 5 && fails > 0 {
			fails--
			return errors.New("smtp down")
		}
		return nil
	})

	require.Eventually(t, func() bool { return r.commits() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{
		"handle 0/5",
		"handle 0/5",
		"handle 0/5",
		"commit 0/5",
		"handle 0/6",
		"commit 0/6",
	}, r.snapshot())
}

func TestPartitionsCommitInOffsetOrder(t *testing.T) {
	var queue []kafka.Message
	for off := int64(0); off < 20; off++ {
		queue = append(queue, kafka.Message{Partition: int(off % 3), Offset: off})
	}
	r := &fakeReader{queue: queue}
	startConsumer(t, r, 2, func(context.Context, kafka.Message) error { return nil })

	require.Eventually(t, func() bool { return r.commits() == 20 }, time.Second, time.Millisecond)
	last := map[int]int64{}
	for _, e := range r.snapshot() {
		var p int
		var off int64
		if _, err := fmt.Sscanf(e, "commit %d/%d", &p, &off); err != nil {
			continue
		}
		if prev, ok := last[p]; ok {
			assert.Greater(t, off, prev, "partition %d", p)
		}
		last[p] = off
	}
}

func TestRetryStopsWhenContextEnds(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{{Partition: 1, Offset: 9}}}
	c := newConsumer(r, 1, zap.NewNop())
	c.backoff = func(int) time.Duration { return time.Hour }

	ctx, cancel := context.WithCancel(context.Background())
	attempted := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.Start(ctx, func(context.Context, kafka.Message) error {
			attempted <- struct{}{}
			return errors.New("down")
		})
	}()

	<-attempted
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.Zero(t, r.commits())
	assert.True(t, r.closed)
}

func TestExpBackoffIsCapped(t *testing.T) {
	assert.Equal(t, retryBase, expBackoff(1))
	assert.Equal(t, 2*retryBase, expBackoff(2))
	assert.Equal(t, retryMax, expBackoff(50))
}
