package progress

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/mind-engage/coursetrack/internal/apperr"
)

// ErrVersionConflict is returned by Update when the stored record moved on
// since it was read.
var ErrVersionConflict = errors.New("progress: version conflict")

type Store interface {
	Get(ctx context.Context, learnerID, courseID string) (Record, error)
	// Create inserts rec unless a record for the pair already exists, and
	// returns whichever record is stored.
	Create(ctx context.Context, rec Record) (Record, error)
	// Update writes rec if the stored version equals rec.Version and returns
	// the record with its new version.
	Update(ctx context.Context, rec Record) (Record, error)
	ListByCourse(ctx context.Context, courseID string) ([]Record, error)
}

type memoryStore struct {
	mu      sync.RWMutex
	records map[[2]string]Record
}

func NewInMemoryStore() Store {
	return &memoryStore{records: map[[2]string]Record{}}
}

func (m *memoryStore) Get(_ context.Context, learnerID, courseID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[[2]string{learnerID, courseID}]
	if !ok {
		return Record{}, apperr.NotFound("progress not found")
	}
	return r.Clone(), nil
}

func (m *memoryStore) Create(_ context.Context, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := [2]string{rec.LearnerID, rec.CourseID}
	if existing, ok := m.records[k]; ok {
		return existing.Clone(), nil
	}
	rec = rec.Clone()
	rec.Version = 1
	m.records[k] = rec
	return rec.Clone(), nil
}

func (m *memoryStore) Update(_ context.Context, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := [2]string{rec.LearnerID, rec.CourseID}
	cur, ok := m.records[k]
	if !ok {
		return Record{}, apperr.NotFound("progress not found")
	}
	if cur.Version != rec.Version {
		return Record{}, ErrVersionConflict
	}
	rec = rec.Clone()
	rec.Version++
	m.records[k] = rec
	return rec.Clone(), nil
}

func (m *memoryStore) ListByCourse(_ context.Context, courseID string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Record{}
	for k, r := range m.records {
		if k[1] == courseID {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LearnerID < out[j].LearnerID })
	return out, nil
}
