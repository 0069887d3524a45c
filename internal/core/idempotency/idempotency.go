// Package idempotency remembers the response to a request carrying an
// Idempotency-Key so a retried request replays it instead of running again.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"
)

var (
	ErrInFlight    = errors.New("a request with this idempotency key is in progress")
	ErrKeyMismatch = errors.New("idempotency key was used with a different request")
)

const (
	stateInFlight = "in_flight"
	stateDone     = "done"
)

// Record is a completed response.
type Record struct {
	Fingerprint string `json:"fingerprint"`
	State       string `json:"state"`
	StatusCode  int    `json:"status_code,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Store claims keys and keeps completed responses.
//
// Begin returns (nil, nil) when the caller now owns key and must finish with
// Complete or Release. It returns the stored record when the key completed
// earlier with the same fingerprint.
type Store interface {
	Begin(ctx context.Context, key, fingerprint string) (*Record, error)
	Complete(ctx context.Context, key string, rec Record) error
	Release(ctx context.Context, key string) error
}

// Fingerprint identifies a request by method, path and body.
func Fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func resolve(existing Record, fingerprint string) (*Record, error) {
	if existing.Fingerprint != fingerprint {
		return nil, ErrKeyMismatch
	}
	if existing.State != stateDone {
		return nil, ErrInFlight
	}
	return &existing, nil
}

// MemoryStore keeps records in process. It backs single-instance deployments
// without Redis.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	records map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	rec       Record
	expiresAt time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, records: map[string]memoryEntry{}, now: time.Now}
}

func (s *MemoryStore) Begin(_ context.Context, key, fingerprint string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.records[key]; ok && now.Before(e.expiresAt) {
		return resolve(e.rec, fingerprint)
	}
	s.records[key] = memoryEntry{
		rec:       Record{Fingerprint: fingerprint, State: stateInFlight},
		expiresAt: now.Add(s.ttl),
	}
	return nil, nil
}

func (s *MemoryStore) Complete(_ context.Context, key string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.State = stateDone
	s.records[key] = memoryEntry{rec: rec, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, key)
	return nil
}
