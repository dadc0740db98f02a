package mocks

import "github.com/tourverse/traveler/domain"

// MockTokenInspector implements domain.TokenInspector for testing.
type MockTokenInspector struct {
	ExpiredFunc func(token string) (bool, error)
}

// NewMockTokenInspector creates a new MockTokenInspector with default
// behaviors.
func NewMockTokenInspector() *MockTokenInspector {
	return &MockTokenInspector{}
}

// Expired reports token expiry.
func (m *MockTokenInspector) Expired(token string) (bool, error) {
	if m.ExpiredFunc != nil {
		return m.ExpiredFunc(token)
	}
	// Default behavior: token is still live
	return false, nil
}

// Compile-time interface compliance verification
var _ domain.TokenInspector = (*MockTokenInspector)(nil)
