package identity

import (
	"context"
	"sync"
)

// MockRegistry is an in-memory Registry for development and tests. Not
// for production use.
type MockRegistry struct {
	mu            sync.RWMutex
	byStaffNumber map[string]*Record
	byNationalID  map[string]*Record
	unavailable   bool
}

// NewMockRegistry creates an empty mock registry
func NewMockRegistry() *MockRegistry {
	return &MockRegistry{
		byStaffNumber: make(map[string]*Record),
		byNationalID:  make(map[string]*Record),
	}
}

// AddRecord registers a record under a staff number and national ID
func (m *MockRegistry) AddRecord(staffNumber, nationalID string, record Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := record
	if staffNumber != "" {
		m.byStaffNumber[staffNumber] = &r
	}
	if nationalID != "" {
		m.byNationalID[nationalID] = &r
	}
}

// SetUnavailable makes every subsequent lookup fail with ErrUnavailable
func (m *MockRegistry) SetUnavailable(unavailable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = unavailable
}

// Lookup implements Registry
func (m *MockRegistry) Lookup(ctx context.Context, q Query) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.unavailable {
		return nil, ErrUnavailable
	}

	if q.StaffNumber != "" {
		if r, ok := m.byStaffNumber[q.StaffNumber]; ok {
			return r, nil
		}
	}
	if q.IDOrPassport != "" {
		if r, ok := m.byNationalID[q.IDOrPassport]; ok {
			return r, nil
		}
	}

	return nil, ErrNotFound
}
