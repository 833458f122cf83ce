package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zilinissleepin/crypto-news-trading/pkg/bus"
	"github.com/zilinissleepin/crypto-news-trading/pkg/models"
)

func publishNews(t *testing.T, b bus.EventBus, stream, eventID string, publishedAt time.Time) {
	t.Helper()
	news := models.NewNewsEvent(eventID, "rss", publishedAt, "title-"+eventID, "content-"+eventID)
	payload, err := models.Encode(news)
	require.NoError(t, err)
	_, err = b.Publish(context.Background(), stream, payload)
	require.NoError(t, err)
}

// TestSubmit_ReplaysWindowedEvents is the literal §8 replay scenario: five
// NewsEvents spanning 10:00-12:00 UTC, a window of [10:30, 11:30] with
// max_publish=2, dry_run=false -> scanned=5, matched=3, published=2, with
// event ids "{orig}:replay:{replay_id}:1" and ":2".
func TestSubmit_ReplaysWindowedEvents(t *testing.T) {
	memBus := bus.NewMemoryEventBus()
	engine := New(NewMemoryTaskStore(), memBus)

	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * 30 * time.Minute)
		publishNews(t, memBus, models.StreamNewsRaw, fmt.Sprintf("news-%d", i), ts)
	}

	task, err := engine.Submit(context.Background(), WindowRequest{
		Start:        base.Add(30 * time.Minute),
		End:          base.Add(90 * time.Minute),
		SourceStream: models.StreamNewsRaw,
		TargetStream: "news.replayed",
		MaxPublish:   2,
	}, false)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, task.Status)
	assert.Equal(t, 5, task.Scanned)
	assert.Equal(t, 3, task.Matched)
	assert.Equal(t, 2, task.Published)

	records, err := memBus.Read(context.Background(), "news.replayed", "0-0", 0, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	idPattern := regexp.MustCompile(`^[\w-]+:replay:` + regexp.QuoteMeta(task.ReplayID) + `:\d+$`)
	for idx, rec := range records {
		var news models.NewsEvent
		require.NoError(t, json.Unmarshal(rec.Payload, &news))
		assert.Regexp(t, idPattern, news.EventID)
		assert.Contains(t, news.EventID, fmt.Sprintf(":replay:%s:%d", task.ReplayID, idx+1))
	}
}

func TestSubmit_DryRunPublishesNothing(t *testing.T) {
	memBus := bus.NewMemoryEventBus()
	engine := New(NewMemoryTaskStore(), memBus)

	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	publishNews(t, memBus, models.StreamNewsRaw, "news-0", base)

	task, err := engine.Submit(context.Background(), WindowRequest{
		Start:        base.Add(-time.Hour),
		End:          base.Add(time.Hour),
		SourceStream: models.StreamNewsRaw,
		TargetStream: "news.replayed",
		DryRun:       true,
	}, false)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, task.Status)
	assert.Equal(t, 1, task.Matched)
	assert.Equal(t, 0, task.Published)

	records, err := memBus.Read(context.Background(), "news.replayed", "0-0", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestCancel_RejectsTerminalTask(t *testing.T) {
	memBus := bus.NewMemoryEventBus()
	engine := New(NewMemoryTaskStore(), memBus)

	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	task, err := engine.Submit(context.Background(), WindowRequest{
		Start: base, End: base.Add(time.Hour), SourceStream: models.StreamNewsRaw,
	}, false)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, task.Status)

	_, err = engine.Cancel(context.Background(), task.TaskID)
	assert.Error(t, err)
}

func TestRetry_OnlyAllowedFromTerminalStatus(t *testing.T) {
	memBus := bus.NewMemoryEventBus()
	engine := New(NewMemoryTaskStore(), memBus)

	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	task, err := engine.Submit(context.Background(), WindowRequest{
		Start: base, End: base.Add(time.Hour), SourceStream: models.StreamNewsRaw,
	}, false)
	require.NoError(t, err)

	retried, err := engine.Retry(context.Background(), task.TaskID, false)
	require.NoError(t, err)
	assert.NotEqual(t, task.TaskID, retried.TaskID)
	assert.Equal(t, task.Start, retried.Start)
	assert.Equal(t, task.End, retried.End)
}

func TestMetrics_AggregatesCountsAndSuccessRate(t *testing.T) {
	memBus := bus.NewMemoryEventBus()
	engine := New(NewMemoryTaskStore(), memBus)

	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	_, err := engine.Submit(context.Background(), WindowRequest{
		Start: base, End: base.Add(time.Hour), SourceStream: models.StreamNewsRaw,
	}, false)
	require.NoError(t, err)

	metrics, err := engine.Metrics(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.Counts[StatusCompleted])
	assert.Equal(t, 1.0, metrics.SuccessRate)
}
