package breakreq

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrNotFound       = errors.New("break request not found")
	ErrStatusMismatch = errors.New("break request status mismatch")
)

// StatusMismatchError reports the status found when a compare-and-set lost.
type StatusMismatchError struct {
	RequesterID int64
	Expected    Status
	Actual      Status
}

func (e *StatusMismatchError) Error() string {
	return fmt.Sprintf("request for %d is %s, expected %s", e.RequesterID, e.Actual, e.Expected)
}

func (e *StatusMismatchError) Unwrap() error { return ErrStatusMismatch }

type record struct {
	mu  sync.Mutex
	req Request
}

// Store holds the latest break request per requester in memory.
// Writers to the same requester are serialized on that requester's record only.
type Store struct {
	mu      sync.RWMutex
	records map[int64]*record
	now     func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		records: make(map[int64]*record),
		now:     time.Now,
	}
}

// Put inserts or replaces the request for req.RequesterID.
func (s *Store) Put(req Request) {
	rec := s.recordFor(req.RequesterID)
	rec.mu.Lock()
	rec.req = req
	rec.mu.Unlock()
}

// Get returns a copy of the stored request.
func (s *Store) Get(requesterID int64) (Request, error) {
	s.mu.RLock()
	rec, ok := s.records[requesterID]
	s.mu.RUnlock()
	if !ok {
		return Request{}, fmt.Errorf("%w: %d", ErrNotFound, requesterID)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.req, nil
}

// CompareAndSetStatus moves the request from expected to next atomically and
// returns the updated copy. Concurrent callers racing from the same expected
// status see exactly one success; the rest get ErrStatusMismatch.
func (s *Store) CompareAndSetStatus(requesterID int64, expected, next Status) (Request, error) {
	s.mu.RLock()
	rec, ok := s.records[requesterID]
	s.mu.RUnlock()
	if !ok {
		return Request{}, fmt.Errorf("%w: %d", ErrNotFound, requesterID)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.req.Status != expected {
		return rec.req, &StatusMismatchError{
			RequesterID: requesterID,
			Expected:    expected,
			Actual:      rec.req.Status,
		}
	}
	rec.req.Status = next
	if next.Terminal() {
		rec.req.ResolvedAt = s.now().UTC()
	}
	return rec.req, nil
}

func (s *Store) recordFor(requesterID int64) *record {
	s.mu.RLock()
	rec, ok := s.records[requesterID]
	s.mu.RUnlock()
	if ok {
		return rec
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok = s.records[requesterID]; ok {
		return rec
	}
	rec = &record{}
	s.records[requesterID] = rec
	return rec
}
