package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"servicetracker/internal/metrics"
	"servicetracker/internal/models"
	"servicetracker/internal/storage"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)}
}

func newLog(t *testing.T, store storage.Store, clock *fakeClock) *Log {
	t.Helper()
	l, err := New(context.Background(), store, WithClock(clock.Now))
	require.NoError(t, err)
	return l
}

type failingStore struct {
	storage.Store
	fail bool
}

func (s *failingStore) Save(ctx context.Context, key, value string) error {
	if s.fail {
		return errors.New("disk full")
	}
	return s.Store.Save(ctx, key, value)
}

func TestStartCreatesOpenRecord(t *testing.T) {
	clock := newClock()
	l := newLog(t, storage.NewMemoryStore(), clock)

	rec, err := l.Start(context.Background(), "Ana", "R-1")
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, clock.t, rec.StartTime)
	assert.Nil(t, rec.EndTime)
	assert.Nil(t, rec.Duration)

	got, ok := l.Get(rec.ID)
	require.True(t, ok)
	assert.Equal(t, rec, got)
	assert.Nil(t, got.EndTime)
	assert.Nil(t, got.Duration)
}

func TestStartAcceptsEmptyFields(t *testing.T) {
	l := newLog(t, storage.NewMemoryStore(), newClock())
	rec, err := l.Start(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, "", rec.Name)
	assert.Len(t, l.Services(), 1)
}

func TestEndComputesFlooredDuration(t *testing.T) {
	clock := newClock()
	l := newLog(t, storage.NewMemoryStore(), clock)
	ctx := context.Background()

	rec, err := l.Start(ctx, "Ana", "R-1")
	require.NoError(t, err)
	clock.Advance(2*time.Hour + 15*time.Minute + 30*time.Second + 999*time.Millisecond)

	done, err := l.End(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, done.EndTime)
	require.NotNil(t, done.Duration)
	assert.False(t, done.EndTime.Before(done.StartTime))
	assert.Equal(t, "2h 15m 30s", *done.Duration)
	assert.Equal(t, int64(2), done.WholeHours())
}

func TestEndAtByIndex(t *testing.T) {
	clock := newClock()
	l := newLog(t, storage.NewMemoryStore(), clock)
	ctx := context.Background()

	_, err := l.Start(ctx, "Ana", "a")
	require.NoError(t, err)
	_, err = l.Start(ctx, "Luis", "b")
	require.NoError(t, err)
	clock.Advance(90 * time.Minute)

	done, err := l.EndAt(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Luis", done.Name)
	assert.Equal(t, "1h 30m 0s", *done.Duration)

	services := l.Services()
	assert.Nil(t, services[0].EndTime)
	assert.NotNil(t, services[1].EndTime)
}

func TestEndAtOutOfRange(t *testing.T) {
	l := newLog(t, storage.NewMemoryStore(), newClock())
	ctx := context.Background()
	_, err := l.Start(ctx, "Ana", "a")
	require.NoError(t, err)

	for _, idx := range []int{-1, 1, 42} {
		_, err := l.EndAt(ctx, idx)
		assert.ErrorIs(t, err, ErrIndexOutOfRange, "index %d", idx)
	}
	assert.Nil(t, l.Services()[0].EndTime, "failed completion must not touch records")
}

func TestEndUnknownID(t *testing.T) {
	l := newLog(t, storage.NewMemoryStore(), newClock())
	_, err := l.End(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDoubleCompletionRejected(t *testing.T) {
	clock := newClock()
	l := newLog(t, storage.NewMemoryStore(), clock)
	ctx := context.Background()

	rec, err := l.Start(ctx, "Ana", "a")
	require.NoError(t, err)
	clock.Advance(time.Hour)
	first, err := l.End(ctx, rec.ID)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	_, err = l.End(ctx, rec.ID)
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
	_, err = l.EndAt(ctx, 0)
	assert.ErrorIs(t, err, ErrAlreadyCompleted)

	got, _ := l.Get(rec.ID)
	assert.Equal(t, *first.EndTime, *got.EndTime)
	assert.Equal(t, "1h 0m 0s", *got.Duration)
}

func TestPersistsEveryMutation(t *testing.T) {
	clock := newClock()
	store := storage.NewMemoryStore()
	ctx := context.Background()
	l := newLog(t, store, clock)

	rec, err := l.Start(ctx, "Ana", "a")
	require.NoError(t, err)
	raw, ok, err := store.Load(ctx, StorageKey)
	require.NoError(t, err)
	require.True(t, ok)
	persisted, err := DecodeRecords(raw)
	require.NoError(t, err)
	assert.Equal(t, l.Services(), persisted)

	clock.Advance(3 * time.Hour)
	_, err = l.End(ctx, rec.ID)
	require.NoError(t, err)

	reloaded := newLog(t, store, clock)
	assert.Equal(t, l.Services(), reloaded.Services())
}

func TestFailedSaveRollsBack(t *testing.T) {
	clock := newClock()
	store := &failingStore{Store: storage.NewMemoryStore()}
	ctx := context.Background()
	l := newLog(t, store, clock)

	rec, err := l.Start(ctx, "Ana", "a")
	require.NoError(t, err)

	store.fail = true
	_, err = l.Start(ctx, "Luis", "b")
	assert.ErrorContains(t, err, "disk full")
	assert.Len(t, l.Services(), 1)

	clock.Advance(time.Hour)
	_, err = l.End(ctx, rec.ID)
	assert.Error(t, err)
	got, _ := l.Get(rec.ID)
	assert.False(t, got.Completed())

	store.fail = false
	_, err = l.End(ctx, rec.ID)
	assert.NoError(t, err)
}

func TestNewFallsBackOnMalformedData(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, StorageKey, "{broken"))

	l := newLog(t, store, newClock())
	assert.Empty(t, l.Services())
}

func TestNewLoadsLegacyRecords(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	legacy := `[{"name":"Ana","range":"R","startTime":"2024-05-06T08:00:00.000Z","endTime":"2024-05-06T10:15:30.000Z","duration":"2h 15m 30s"},
		{"name":"Luis","range":"R","startTime":"2024-05-06T08:00:00.000Z","endTime":null,"duration":null}]`
	require.NoError(t, store.Save(ctx, StorageKey, legacy))

	clock := newClock()
	l := newLog(t, store, clock)
	services := l.Services()
	require.Len(t, services, 2)
	assert.NotEmpty(t, services[0].ID)
	assert.NotEqual(t, services[0].ID, services[1].ID)
	assert.Equal(t, int64(2), services[0].WholeHours())

	clock.Advance(time.Hour)
	done, err := l.End(ctx, services[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "2h 0m 0s", *done.Duration)
}

func TestSearchIgnoresCase(t *testing.T) {
	l := newLog(t, storage.NewMemoryStore(), newClock())
	ctx := context.Background()
	for _, name := range []string{"Ana", "Mariana", "Luis"} {
		_, err := l.Start(ctx, name, "")
		require.NoError(t, err)
	}

	got := l.Search("ANA")
	require.Len(t, got, 2)
	assert.Equal(t, "Ana", got[0].Name)
	assert.Equal(t, "Mariana", got[1].Name)
	assert.Len(t, l.Search(""), 3)
	assert.Empty(t, l.Search("zzz"))
}

func TestWeeklySummaryCompletesAtThreshold(t *testing.T) {
	clock := newClock()
	l := newLog(t, storage.NewMemoryStore(), clock)
	ctx := context.Background()

	first, err := l.Start(ctx, "Ana", "a")
	require.NoError(t, err)
	clock.Advance(15 * time.Hour)
	_, err = l.End(ctx, first.ID)
	require.NoError(t, err)

	second, err := l.Start(ctx, "Ana", "a")
	require.NoError(t, err)
	clock.Advance(13*time.Hour + 59*time.Minute)
	_, err = l.End(ctx, second.ID)
	require.NoError(t, err)

	_, err = l.Start(ctx, "Luis", "b")
	require.NoError(t, err)

	summary := l.WeeklySummary()
	require.Len(t, summary, 1)
	assert.Equal(t, "Ana", summary[0].Name)
	assert.Equal(t, 28.0, summary[0].Hours)
	assert.Equal(t, metrics.StatusComplete, summary[0].Status)

	clock.Advance(8 * 24 * time.Hour)
	assert.Empty(t, l.WeeklySummary())
}

func TestListenersReceiveEvents(t *testing.T) {
	clock := newClock()
	l := newLog(t, storage.NewMemoryStore(), clock)
	ctx := context.Background()

	var events []Event
	l.Subscribe(func(ev Event) { events = append(events, ev) })

	rec, err := l.Start(ctx, "Ana", "a")
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = l.End(ctx, rec.ID)
	require.NoError(t, err)
	_, err = l.End(ctx, rec.ID)
	require.Error(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, EventStarted, events[0].Kind)
	assert.Equal(t, "Servicio iniciado para Ana", events[0].Message)
	assert.Equal(t, EventEnded, events[1].Kind)
	assert.Equal(t, "Servicio finalizado para Ana", events[1].Message)
	assert.Equal(t, rec.ID, events[1].Record.ID)
}

func TestCodecRoundTrip(t *testing.T) {
	start := time.Date(2024, 5, 6, 8, 0, 0, 123000000, time.UTC)
	end := start.Add(2*time.Hour + 15*time.Minute + 30*time.Second)
	d := models.FormatDuration(end.Sub(start))
	ms := end.Sub(start).Milliseconds()
	records := []models.ServiceRecord{
		{ID: "a", Name: "Ana", Range: "R-1", StartTime: start, EndTime: &end, Duration: &d, ElapsedMS: &ms},
		{ID: "b", Name: "Luis", Range: "", StartTime: start},
	}

	raw, err := EncodeRecords(records)
	require.NoError(t, err)
	assert.Contains(t, raw, `"endTime":null`)
	assert.Contains(t, raw, `"duration":"2h 15m 30s"`)

	decoded, err := DecodeRecords(raw)
	require.NoError(t, err)
	assert.Equal(t, records, decoded)
}

func TestDecodeRecordsErrors(t *testing.T) {
	_, err := DecodeRecords("[{")
	assert.ErrorIs(t, err, ErrDeserialization)

	_, err = DecodeRecords(`[{"name":"x","startTime":"2024-05-06T08:00:00Z","endTime":"2024-05-06T09:00:00Z","duration":null}]`)
	assert.ErrorIs(t, err, ErrDeserialization)

	empty, err := DecodeRecords("null")
	require.NoError(t, err)
	assert.Empty(t, empty)

	empty, err = DecodeRecords("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	raw, err := EncodeRecords(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)
}
