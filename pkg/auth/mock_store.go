package auth

import (
	"sync"
)

// MockStore implements Store for testing purposes
type MockStore struct {
	profiles map[string]*Credentials
	mu       sync.RWMutex

	// Error injection for testing
	SaveError     error
	RetrieveError error
	ListError     error
	DeleteError   error
}

// NewMockStore creates a new mock credential store
func NewMockStore() *MockStore {
	return &MockStore{
		profiles: make(map[string]*Credentials),
	}
}

// Save stores credentials in the mock store
func (m *MockStore) Save(creds *Credentials) error {
	if m.SaveError != nil {
		return m.SaveError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if creds == nil || creds.Profile == "" {
		return ErrInvalidCredentials
	}

	// Copy to avoid external modifications
	credsCopy := *creds
	m.profiles[creds.Profile] = &credsCopy

	return nil
}

// Retrieve gets credentials from the mock store
func (m *MockStore) Retrieve(profile string) (*Credentials, error) {
	if m.RetrieveError != nil {
		return nil, m.RetrieveError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if profile == "" {
		return nil, ErrInvalidCredentials
	}

	creds, exists := m.profiles[profile]
	if !exists {
		return nil, ErrCredentialsNotFound
	}

	credsCopy := *creds
	return &credsCopy, nil
}

// List returns all stored profiles from the mock store
func (m *MockStore) List() ([]*Credentials, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var profiles []*Credentials
	for _, creds := range m.profiles {
		credsCopy := *creds
		profiles = append(profiles, &credsCopy)
	}

	return profiles, nil
}

// Delete removes credentials from the mock store
func (m *MockStore) Delete(profile string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if profile == "" {
		return ErrInvalidCredentials
	}

	if _, exists := m.profiles[profile]; !exists {
		return ErrCredentialsNotFound
	}

	delete(m.profiles, profile)
	return nil
}

// Exists checks if credentials exist in the mock store
func (m *MockStore) Exists(profile string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.profiles[profile]
	return exists
}

// Clear removes all profiles from the mock store (useful for test cleanup)
func (m *MockStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.profiles = make(map[string]*Credentials)
}

// Count returns the number of profiles in the mock store
func (m *MockStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.profiles)
}

// NewMockManager creates a Manager with a mock store for testing
func NewMockManager() (*Manager, *MockStore) {
	mockStore := NewMockStore()
	manager := &Manager{
		stores: []Store{mockStore},
	}
	return manager, mockStore
}

// NewMockManagerWithStores creates a Manager with explicit stores for testing
func NewMockManagerWithStores(stores ...Store) *Manager {
	return &Manager{
		stores: stores,
	}
}
