package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const HeaderIdempotencyKey = "X-Idempotency-Key"

type IdempotencyRecord struct {
	Status    int
	Body      []byte
	CreatedAt time.Time
	// Processing marks a key whose first request has not finished yet.
	Processing bool
}

type IdempotencyStore interface {
	// GetOrLock returns (record, true) if the key exists; (nil, false) if the
	// caller now holds the lock.
	GetOrLock(ctx context.Context, key string) (*IdempotencyRecord, bool)
	Save(ctx context.Context, key string, status int, body []byte)
	Unlock(ctx context.Context, key string)
}

// InMemIdempotencyStore keeps records in process for single-node setups.
type InMemIdempotencyStore struct {
	mu      sync.RWMutex
	ttl     time.Duration
	records map[string]*IdempotencyRecord
}

func NewInMemIdempotencyStore(ttl time.Duration) *InMemIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &InMemIdempotencyStore{
		ttl:     ttl,
		records: make(map[string]*IdempotencyRecord),
	}
}

func (s *InMemIdempotencyStore) GetOrLock(_ context.Context, key string) (*IdempotencyRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[key]; ok && time.Since(rec.CreatedAt) < s.ttl {
		return rec, true
	}

	s.records[key] = &IdempotencyRecord{
		Processing: true,
		CreatedAt:  time.Now(),
	}
	return nil, false
}

func (s *InMemIdempotencyStore) Save(_ context.Context, key string, status int, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[key] = &IdempotencyRecord{
		Status:    status,
		Body:      body,
		CreatedAt: time.Now(),
	}
}

func (s *InMemIdempotencyStore) Unlock(_ context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
}

// IdempotencyMiddleware replays the stored response for a repeated
// X-Idempotency-Key from the same caller. Must run after CallerMiddleware
// and inside ErrorHandler.
func IdempotencyMiddleware(store IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		idemKey := c.GetHeader(HeaderIdempotencyKey)
		if idemKey == "" || store == nil {
			c.Next()
			return
		}

		owner := "anonymous"
		if caller, ok := CallerFrom(c); ok {
			owner = caller.Hex()
		}
		// concrete path: /postsalers/A/claim and /postsalers/B/claim are distinct keys
		fullKey := owner + ":" + c.Request.Method + ":" + c.Request.URL.Path + ":" + idemKey
		ctx := c.Request.Context()

		record, hit := store.GetOrLock(ctx, fullKey)
		if hit {
			if record.Processing {
				c.JSON(http.StatusConflict, gin.H{"error": "request in progress"})
				c.Abort()
				return
			}
			c.Header("Idempotent-Replayed", "true")
			c.Data(record.Status, "application/json; charset=utf-8", record.Body)
			c.Abort()
			return
		}

		w := &responseBodyWriter{ResponseWriter: c.Writer}
		c.Writer = w

		c.Next()

		// Errors are rendered later by ErrorHandler, so only responses the
		// handler wrote itself can be replayed. Failed attempts stay retryable.
		if len(c.Errors) == 0 && c.Writer.Written() && c.Writer.Status() < 500 {
			store.Save(ctx, fullKey, c.Writer.Status(), w.body)
		} else {
			store.Unlock(ctx, fullKey)
		}
	}
}

type responseBodyWriter struct {
	gin.ResponseWriter
	body []byte
}

func (w *responseBodyWriter) Write(b []byte) (int, error) {
	w.body = append(w.body, b...)
	return w.ResponseWriter.Write(b)
}
