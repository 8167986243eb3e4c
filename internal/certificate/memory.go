package certificate

import (
	"context"
	"sort"
	"sync"

	"github.com/mind-engage/coursetrack/internal/apperr"
)

type memoryStore struct {
	mu    sync.RWMutex
	byID  map[string]Certificate
	pairs map[[2]string]string
	certs map[string]string
}

func NewInMemoryStore() Store {
	return &memoryStore{
		byID:  map[string]Certificate{},
		pairs: map[[2]string]string{},
		certs: map[string]string{},
	}
}

func (m *memoryStore) Insert(_ context.Context, c Certificate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk := [2]string{c.LearnerID, c.CourseID}
	if _, ok := m.pairs[pk]; ok {
		return apperr.Conflict("certificate already issued for course %s", c.CourseID)
	}
	if _, ok := m.certs[c.CertificateID]; ok {
		return apperr.Conflict("certificate id %s taken", c.CertificateID)
	}
	if _, ok := m.byID[c.ID]; ok {
		return apperr.Conflict("certificate %s exists", c.ID)
	}
	m.byID[c.ID] = c
	m.pairs[pk] = c.ID
	m.certs[c.CertificateID] = c.ID
	return nil
}

func (m *memoryStore) GetByPair(_ context.Context, learnerID, courseID string) (Certificate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.pairs[[2]string{learnerID, courseID}]
	if !ok {
		return Certificate{}, apperr.NotFound("certificate not found")
	}
	return m.byID[id], nil
}

func (m *memoryStore) Get(_ context.Context, id string) (Certificate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byID[id]
	if !ok {
		return Certificate{}, apperr.NotFound("certificate not found")
	}
	return c, nil
}

func (m *memoryStore) GetByCertificateID(_ context.Context, certificateID string) (Certificate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.certs[certificateID]
	if !ok {
		return Certificate{}, apperr.NotFound("certificate not found")
	}
	return m.byID[id], nil
}

func (m *memoryStore) ListByLearner(_ context.Context, learnerID string) ([]Certificate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Certificate{}
	for _, c := range m.byID {
		if c.LearnerID == learnerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssueDate.After(out[j].IssueDate) })
	return out, nil
}
