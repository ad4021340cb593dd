package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"servicetracker/internal/metrics"
	"servicetracker/internal/models"
	"servicetracker/internal/storage"
)

// StorageKey is the key the record list is persisted under.
const StorageKey = "services"

var (
	ErrIndexOutOfRange  = errors.New("service index out of range")
	ErrNotFound         = errors.New("service not found")
	ErrAlreadyCompleted = errors.New("service already completed")
)

// EventKind identifies a mutation of the log.
type EventKind string

const (
	EventStarted EventKind = "started"
	EventEnded   EventKind = "ended"
)

// Event is delivered to listeners after a mutation has been persisted.
type Event struct {
	Kind    EventKind            `json:"kind"`
	Record  models.ServiceRecord `json:"record"`
	Message string               `json:"message"`
}

// Listener receives events synchronously on the mutating goroutine.
type Listener func(Event)

// Log owns the ordered list of service records and persists it on every mutation.
type Log struct {
	mu        sync.RWMutex
	store     storage.Store
	records   []models.ServiceRecord
	listeners []Listener

	now     func() time.Time
	logger  *slog.Logger
	summary metrics.SummaryOptions
}

// Option configures a Log.
type Option func(*Log)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) { l.logger = logger }
}

// WithSummaryOptions sets the weekly window and completion threshold.
func WithSummaryOptions(opts metrics.SummaryOptions) Option {
	return func(l *Log) { l.summary = opts }
}

// New loads the persisted records from store. A missing value yields an empty
// log; a malformed one is logged and discarded.
func New(ctx context.Context, store storage.Store, opts ...Option) (*Log, error) {
	l := &Log{
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}

	raw, ok, err := store.Load(ctx, StorageKey)
	if err != nil {
		return nil, fmt.Errorf("load services: %w", err)
	}
	l.records = []models.ServiceRecord{}
	if ok {
		records, err := DecodeRecords(raw)
		if err != nil {
			l.logger.Warn("discarding persisted services", "error", err)
		} else {
			l.records = records
		}
	}
	l.logger.Debug("service log loaded", "records", len(l.records))
	metrics.SetOpenServices(l.openCountLocked())
	return l, nil
}

// Subscribe registers fn for every subsequent event.
func (l *Log) Subscribe(fn Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Start appends a new open record. Empty name or range are accepted as-is.
func (l *Log) Start(ctx context.Context, name, rng string) (models.ServiceRecord, error) {
	l.mu.Lock()
	rec := models.ServiceRecord{
		ID:        uuid.NewString(),
		Name:      name,
		Range:     rng,
		StartTime: l.timestamp(),
	}
	l.records = append(l.records, rec)
	if err := l.persistLocked(ctx); err != nil {
		l.records = l.records[:len(l.records)-1]
		l.mu.Unlock()
		return models.ServiceRecord{}, err
	}
	open := l.openCountLocked()
	listeners := l.listeners
	l.mu.Unlock()

	metrics.IncStart(name)
	metrics.SetOpenServices(open)
	l.logger.Info("service started", "id", rec.ID, "name", name, "range", rng)
	l.emit(listeners, Event{
		Kind:    EventStarted,
		Record:  rec,
		Message: fmt.Sprintf("Servicio iniciado para %s", name),
	})
	return rec, nil
}

// EndAt completes the record at position index of Services().
func (l *Log) EndAt(ctx context.Context, index int) (models.ServiceRecord, error) {
	l.mu.Lock()
	if index < 0 || index >= len(l.records) {
		n := len(l.records)
		l.mu.Unlock()
		return models.ServiceRecord{}, fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, index, n)
	}
	return l.completeLocked(ctx, index)
}

// End completes the record with the given id.
func (l *Log) End(ctx context.Context, id string) (models.ServiceRecord, error) {
	l.mu.Lock()
	index := l.indexLocked(id)
	if index < 0 {
		l.mu.Unlock()
		return models.ServiceRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return l.completeLocked(ctx, index)
}

// completeLocked must be called with l.mu held; it releases the lock.
func (l *Log) completeLocked(ctx context.Context, index int) (models.ServiceRecord, error) {
	prev := l.records[index]
	if prev.Completed() {
		l.mu.Unlock()
		return models.ServiceRecord{}, fmt.Errorf("%w: %s", ErrAlreadyCompleted, prev.ID)
	}

	end := l.timestamp()
	if end.Before(prev.StartTime) {
		end = prev.StartTime
	}
	elapsed := end.Sub(prev.StartTime)
	duration := models.FormatDuration(elapsed)
	ms := elapsed.Milliseconds()

	rec := prev
	rec.EndTime = &end
	rec.Duration = &duration
	rec.ElapsedMS = &ms
	l.records[index] = rec

	if err := l.persistLocked(ctx); err != nil {
		l.records[index] = prev
		l.mu.Unlock()
		return models.ServiceRecord{}, err
	}
	open := l.openCountLocked()
	listeners := l.listeners
	l.mu.Unlock()

	metrics.IncEnd(rec.Name, elapsed.Hours())
	metrics.SetOpenServices(open)
	metrics.SetWeeklyHours(l.WeeklySummary())
	l.logger.Info("service ended", "id", rec.ID, "name", rec.Name, "duration", duration)
	l.emit(listeners, Event{
		Kind:    EventEnded,
		Record:  rec,
		Message: fmt.Sprintf("Servicio finalizado para %s", rec.Name),
	})
	return rec, nil
}

// Services returns a copy of all records in insertion order.
func (l *Log) Services() []models.ServiceRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.ServiceRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Get returns the record with the given id.
func (l *Log) Get(id string) (models.ServiceRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if i := l.indexLocked(id); i >= 0 {
		return l.records[i], true
	}
	return models.ServiceRecord{}, false
}

// Search returns records whose name contains term, ignoring case.
func (l *Log) Search(term string) []models.ServiceRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.ServiceRecord, 0, len(l.records))
	for _, rec := range l.records {
		if MatchName(rec.Name, term) {
			out = append(out, rec)
		}
	}
	return out
}

// MatchName reports whether name contains term, ignoring case.
func MatchName(name, term string) bool {
	return strings.Contains(strings.ToLower(name), strings.ToLower(term))
}

// WeeklySummary aggregates completed hours per name at the current time.
func (l *Log) WeeklySummary() []metrics.WeeklyTotal {
	return metrics.ComputeWeeklySummary(l.Services(), l.now(), l.summary)
}

func (l *Log) indexLocked(id string) int {
	for i := range l.records {
		if l.records[i].ID == id {
			return i
		}
	}
	return -1
}

func (l *Log) openCountLocked() int {
	n := 0
	for _, rec := range l.records {
		if !rec.Completed() {
			n++
		}
	}
	return n
}

func (l *Log) persistLocked(ctx context.Context) error {
	raw, err := EncodeRecords(l.records)
	if err != nil {
		return err
	}
	if err := l.store.Save(ctx, StorageKey, raw); err != nil {
		return fmt.Errorf("save services: %w", err)
	}
	return nil
}

// timestamp matches the millisecond precision of the interchange format.
func (l *Log) timestamp() time.Time {
	return l.now().UTC().Truncate(time.Millisecond)
}

func (l *Log) emit(listeners []Listener, ev Event) {
	for _, fn := range listeners {
		fn(ev)
	}
}
