package dispatch

import (
	"hash/fnv"
	"sync"
	"time"

	"converge/internal/resource"
)

const attemptShards = 32

// attemptRecord is the per-ID retry state.
type attemptRecord struct {
	failures     int
	lastErr      error
	firstFailure time.Time
}

type attemptShard struct {
	mu      sync.Mutex
	records map[resource.ID]*attemptRecord
}

// attemptStore holds retry state per ID, split across shards so workers
// touching different IDs rarely contend.
type attemptStore struct {
	shards [attemptShards]attemptShard
}

func newAttemptStore() *attemptStore {
	s := &attemptStore{}
	for i := range s.shards {
		s.shards[i].records = make(map[resource.ID]*attemptRecord)
	}
	return s
}

func (s *attemptStore) shard(id resource.ID) *attemptShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id.String()))
	return &s.shards[h.Sum32()%attemptShards]
}

// Failures returns the consecutive failure count and last error for id.
func (s *attemptStore) Failures(id resource.ID) (int, error) {
	sh := s.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if r, ok := sh.records[id]; ok {
		return r.failures, r.lastErr
	}
	return 0, nil
}

// Fail records a failed attempt and returns the new failure count.
func (s *attemptStore) Fail(id resource.ID, err error) int {
	sh := s.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	r, ok := sh.records[id]
	if !ok {
		r = &attemptRecord{firstFailure: time.Now()}
		sh.records[id] = r
	}
	r.failures++
	r.lastErr = err
	return r.failures
}

// Reset clears the retry state of id.
func (s *attemptStore) Reset(id resource.ID) {
	sh := s.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.records, id)
}

// Len returns the number of IDs with recorded failures.
func (s *attemptStore) Len() int {
	n := 0
	for i := range s.shards {
		s.shards[i].mu.Lock()
		n += len(s.shards[i].records)
		s.shards[i].mu.Unlock()
	}
	return n
}
