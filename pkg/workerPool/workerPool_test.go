package workerpool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollect_KeepsSubmissionOrder(t *testing.T) {
	wp := NewWorkerPool(Config{WorkerCount: 4})
	defer wp.Close()

	room := NewRoom[int](wp, 0)
	for i := 0; i < 50; i++ {
		require.NoError(t, room.NewTaskWaitForFreeSlot(context.Background(), func(context.Context) (int, error) {
			// Later jobs finish first.
			time.Sleep(time.Duration(50-i) * 100 * time.Microsecond)
			return i * i, nil
		}))
	}

	results := room.Collect()
	require.Len(t, results, 50)
	for i, r := range results {
		assert.NoError(t, r.Err)
		assert.Equal(t, i*i, r.Value)
	}
}

func TestCollect_CarriesErrors(t *testing.T) {
	wp := NewWorkerPool(Config{WorkerCount: 2})
	defer wp.Close()

	boom := errors.New("boom")
	room := NewRoom[string](wp, 0)
	require.NoError(t, room.NewTask(context.Background(), func(context.Context) (string, error) { return "a", nil }))
	require.NoError(t, room.NewTask(context.Background(), func(context.Context) (string, error) { return "", boom }))

	results := room.Collect()
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Value)
	assert.ErrorIs(t, results[1].Err, boom)
}

func TestNewTask_RoomFull(t *testing.T) {
	wp := NewWorkerPool(Config{WorkerCount: 1})
	defer wp.Close()

	room := NewRoom[int](wp, 1)
	job := func(context.Context) (int, error) { return 1, nil }
	require.NoError(t, room.NewTask(context.Background(), job))
	assert.ErrorIs(t, room.NewTask(context.Background(), job), ErrRoomFull)
	assert.Len(t, room.Collect(), 1)
}

func TestNewTask_QueueFull(t *testing.T) {
	wp := NewWorkerPool(Config{WorkerCount: 1, GlobalBuffer: 1})
	defer wp.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	room := NewRoom[int](wp, 0)
	require.NoError(t, room.NewTask(context.Background(), func(context.Context) (int, error) {
		close(started)
		<-block
		return 0, nil
	}))
	<-started
	// The worker is busy; one job fits the buffer, the next does not.
	require.NoError(t, room.NewTask(context.Background(), func(context.Context) (int, error) { return 1, nil }))
	assert.ErrorIs(t, room.NewTask(context.Background(), func(context.Context) (int, error) { return 2, nil }), ErrQueueFull)

	close(block)
	results := room.Collect()
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[1].Value)
}

func TestWaitForFreeSlot_HonoursContext(t *testing.T) {
	wp := NewWorkerPool(Config{WorkerCount: 1, GlobalBuffer: 1})
	defer wp.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	room := NewRoom[int](wp, 0)
	require.NoError(t, room.NewTask(context.Background(), func(context.Context) (int, error) {
		close(started)
		<-block
		return 0, nil
	}))
	<-started
	require.NoError(t, room.NewTask(context.Background(), func(context.Context) (int, error) { return 1, nil }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := room.NewTaskWaitForFreeSlot(ctx, func(context.Context) (int, error) { return 2, nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(block)
	assert.Len(t, room.Collect(), 2)
}

func TestClose(t *testing.T) {
	wp := NewWorkerPool(Config{})
	room := NewRoom[int](wp, 0)
	require.NoError(t, room.NewTask(context.Background(), func(context.Context) (int, error) { return 7, nil }))
	wp.Close()
	wp.Close()

	assert.Equal(t, 7, room.Collect()[0].Value)
	assert.ErrorIs(t, room.NewTask(context.Background(), func(context.Context) (int, error) { return 0, nil }), ErrClosed)
}
