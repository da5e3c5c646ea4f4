package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/skara-labs/crowdgate/internal/model"
	"github.com/skara-labs/crowdgate/internal/pkg/logger"
	"github.com/skara-labs/crowdgate/internal/pkg/metrics"
)

type EventRepo interface {
	Insert(ctx context.Context, event *model.SaleEvent) error
	List(ctx context.Context, filter model.EventFilter) ([]*model.SaleEvent, error)
}

// EventService records committed sale operations. Events are kept in a
// ring buffer, fanned out to live subscribers and persisted asynchronously.
type EventService struct {
	eventChan chan *model.SaleEvent
	logFile   *os.File
	buffer    *eventBuffer
	repo      EventRepo
	done      chan struct{}

	mu     sync.Mutex
	closed bool
	subs   map[chan *model.SaleEvent]struct{}
}

// NewEventService starts the persistence consumer. logDir may be empty to
// skip the JSONL journal.
func NewEventService(logDir string, bufferSize int, repo EventRepo) (*EventService, error) {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	svc := &EventService{
		eventChan: make(chan *model.SaleEvent, bufferSize),
		buffer:    newEventBuffer(bufferSize),
		repo:      repo,
		done:      make(chan struct{}),
		subs:      make(map[chan *model.SaleEvent]struct{}),
	}

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, err
		}
		filename := filepath.Join(logDir, "events-"+time.Now().UTC().Format("2006-01-02")+".jsonl")
		f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		svc.logFile = f
	}

	go svc.processEvents()
	return svc, nil
}

func (s *EventService) Publish(event *model.SaleEvent) {
	if event == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	s.buffer.Add(event)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for ch := range s.subs {
		select {
		case ch <- event:
		default:
			// slow subscriber, drop
		}
	}
	select {
	case s.eventChan <- event:
	default:
		metrics.EventsDropped.Inc()
		logger.Warn("Event queue full, dropping event", "type", event.Type, "id", event.ID)
	}
}

// Subscribe returns a channel receiving every event published from now on
// and a function that ends the subscription.
func (s *EventService) Subscribe(size int) (<-chan *model.SaleEvent, func()) {
	if size <= 0 {
		size = 64
	}
	ch := make(chan *model.SaleEvent, size)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subs[ch]; ok {
				delete(s.subs, ch)
				close(ch)
			}
		})
	}
}

func (s *EventService) List(ctx context.Context, filter model.EventFilter) ([]*model.SaleEvent, error) {
	if s.repo != nil {
		records, err := s.repo.List(ctx, filter)
		if err == nil {
			return records, nil
		}
		logger.LogError(ctx, err, "Event repo list failed, serving from memory")
	}
	return s.buffer.List(filter), nil
}

// PriorHistory reports whether repo already holds events, e.g. from an
// earlier run. Sale state lives in process memory only, so such events
// describe purchases and claims the freshly started core does not know.
func PriorHistory(ctx context.Context, repo EventRepo) (bool, error) {
	if repo == nil {
		return false, nil
	}
	events, err := repo.List(ctx, model.EventFilter{Limit: 1})
	if err != nil {
		return false, err
	}
	return len(events) > 0, nil
}

func (s *EventService) processEvents() {
	defer close(s.done)
	var encoder *json.Encoder
	if s.logFile != nil {
		encoder = json.NewEncoder(s.logFile)
	}
	for event := range s.eventChan {
		if s.repo != nil {
			if err := s.repo.Insert(context.Background(), event); err != nil {
				logger.Error("Failed to persist sale event", "id", event.ID, "error", err)
			}
		}
		if encoder != nil {
			if err := encoder.Encode(event); err != nil {
				logger.Error("Failed to journal sale event", "id", event.ID, "error", err)
			}
		}
	}
}

// Close drains pending events and ends all subscriptions.
func (s *EventService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.eventChan)
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
	s.mu.Unlock()

	<-s.done
	if s.logFile != nil {
		s.logFile.Close()
	}
}

type eventBuffer struct {
	mu        sync.Mutex
	maxSize   int
	records   []*model.SaleEvent
	nextIndex int
}

func newEventBuffer(maxSize int) *eventBuffer {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &eventBuffer{
		maxSize: maxSize,
		records: make([]*model.SaleEvent, 0, maxSize),
	}
}

func (b *eventBuffer) Add(event *model.SaleEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) < b.maxSize {
		b.records = append(b.records, event)
		return
	}
	b.records[b.nextIndex] = event
	b.nextIndex = (b.nextIndex + 1) % b.maxSize
}

// List returns matching events, newest first.
func (b *eventBuffer) List(filter model.EventFilter) []*model.SaleEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	limit := filter.Limit
	if limit <= 0 || limit > b.maxSize {
		limit = b.maxSize
	}
	results := make([]*model.SaleEvent, 0, min(limit, len(b.records)))
	total := len(b.records)
	for i := 0; i < total; i++ {
		idx := (b.nextIndex + total - 1 - i) % total
		if !filter.Match(b.records[idx]) {
			continue
		}
		results = append(results, b.records[idx])
		if len(results) >= limit {
			break
		}
	}
	return results
}
