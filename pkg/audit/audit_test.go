package audit

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitralabs/mitra/internal/models"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordAndRecent(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, models.InvocationRecord{
		CorrelationID: "c1",
		Tool:          "add",
		ServerID:      "calc",
		ArgsJSON:      `{"a":25,"b":17}`,
		Success:       true,
		DurationMs:    12,
	}))

	records, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "c1", r.CorrelationID)
	assert.Equal(t, "add", r.Tool)
	assert.Equal(t, "calc", r.ServerID)
	assert.True(t, r.Success)
	assert.NotZero(t, r.CreatedAt)
	assert.Contains(t, r.Summary(), "calc/add")
}

func TestRecordOutcomeFailure(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	inv := models.ToolInvocation{
		CorrelationID: "c2",
		Tool:          "get_weather",
		ServerID:      "weather",
		Arguments:     map[string]any{"city": "Oslo"},
	}
	terr := &models.ToolError{Kind: models.Timeout, Server: "weather", Message: "deadline exceeded"}
	require.NoError(t, l.RecordOutcome(ctx, inv, terr, 1500*time.Millisecond))

	records, err := l.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.False(t, r.Success)
	assert.Equal(t, string(models.Timeout), r.ErrorKind)
	assert.Equal(t, "deadline exceeded", r.ErrorMessage)
	assert.Equal(t, int64(1500), r.DurationMs)
	assert.Contains(t, r.ArgsJSON, "Oslo")
}

func TestRecentLimitAndOrder(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Record(ctx, models.InvocationRecord{
			CorrelationID: "c",
			Tool:          "add",
			ServerID:      "calc",
			Success:       true,
			CreatedAt:     int64(1000 + i),
		}))
	}

	records, err := l.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, int64(1004), records[0].CreatedAt)
	assert.Equal(t, int64(1002), records[2].CreatedAt)
}

func TestConcurrentRecords(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Record(ctx, models.InvocationRecord{
				CorrelationID: "cc",
				Tool:          "add",
				ServerID:      "calc",
				Success:       true,
			}))
		}()
	}
	wg.Wait()

	records, err := l.Recent(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, records, 20)
}

func TestRecordAfterClose(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	require.NoError(t, l.Close())

	err = l.Record(context.Background(), models.InvocationRecord{
		CorrelationID: "c", Tool: "add", ServerID: "calc",
	})
	assert.Error(t, err)
}

func TestRecordRacingCloseDoesNotBlock(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	require.NoError(t, l.Close())

	// Simulate a caller that passed the open check just before Close ran:
	// the worker is gone, so an enqueued request is never served and the
	// shutdown signal must unblock the wait for its result.
	l.mu.Lock()
	l.started = true
	l.mu.Unlock()

	for i := 0; i < 20; i++ {
		errCh := make(chan error, 1)
		go func() {
			errCh <- l.Record(context.Background(), models.InvocationRecord{
				CorrelationID: "c", Tool: "add", ServerID: "calc",
			})
		}()
		select {
		case err := <-errCh:
			assert.Error(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("Record blocked after close")
		}
	}
}
