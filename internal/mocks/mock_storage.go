package mocks

import "github.com/tourverse/traveler/domain"

// MockStorage implements domain.Storage for testing.
type MockStorage struct {
	GetFunc    func(key string) (string, error)
	SetFunc    func(key, value string) error
	RemoveFunc func(key string) error
}

// NewMockStorage creates a new MockStorage with default behaviors.
func NewMockStorage() *MockStorage {
	return &MockStorage{}
}

// Get returns the stored value.
func (m *MockStorage) Get(key string) (string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(key)
	}
	// Default behavior: nothing stored
	return "", domain.ErrKeyNotFound
}

// Set stores a value.
func (m *MockStorage) Set(key, value string) error {
	if m.SetFunc != nil {
		return m.SetFunc(key, value)
	}
	// Default behavior: success
	return nil
}

// Remove deletes a key.
func (m *MockStorage) Remove(key string) error {
	if m.RemoveFunc != nil {
		return m.RemoveFunc(key)
	}
	// Default behavior: success
	return nil
}

// Compile-time interface compliance verification
var _ domain.Storage = (*MockStorage)(nil)
