package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Credentials holds the osu! API secrets for one profile: the legacy v1
// key used for username resolution and the OAuth client pair used for the
// v2 client-credentials exchange.
type Credentials struct {
	Profile      string    `json:"profile"`
	APIV1Key     string    `json:"api_v1_key"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	LastModified time.Time `json:"last_modified"`
}

// Store is the interface for storing and retrieving credentials
type Store interface {
	// Save stores credentials for a profile
	Save(creds *Credentials) error

	// Retrieve gets credentials for a specific profile
	Retrieve(profile string) (*Credentials, error)

	// List returns all stored profiles
	List() ([]*Credentials, error)

	// Delete removes credentials for a specific profile
	Delete(profile string) error

	// Exists checks if credentials exist for a profile
	Exists(profile string) bool
}

// Manager handles credential storage with fallback mechanisms
type Manager struct {
	stores []Store
}

// NewManager creates a credential manager. Backends are tried in order:
// system keyring, encrypted file, environment variables.
func NewManager() (*Manager, error) {
	var stores []Store

	keyringStore, err := NewKeyringStore()
	if err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// Save stores credentials using the first available store
func (m *Manager) Save(creds *Credentials) error {
	if creds.Profile == "" {
		return errors.New("profile name is required")
	}
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return errors.New("client id and secret are required")
	}
	if creds.APIV1Key == "" {
		return errors.New("v1 API key is required")
	}

	creds.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		if err := store.Save(creds); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return errors.New("no available credential stores")
}

// Retrieve gets credentials from the first store that has them
func (m *Manager) Retrieve(profile string) (*Credentials, error) {
	for _, store := range m.stores {
		if creds, err := store.Retrieve(profile); err == nil && creds != nil {
			return creds, nil
		}
	}
	return nil, fmt.Errorf("credentials not found for profile: %s", profile)
}

// RetrieveDefault gets credentials for the default profile or the first
// available one
func (m *Manager) RetrieveDefault() (*Credentials, error) {
	// Environment variables win for compatibility with .env deployments
	if envStore, ok := m.stores[len(m.stores)-1].(*EnvironmentStore); ok {
		if creds, err := envStore.Retrieve(""); err == nil && creds != nil {
			return creds, nil
		}
	}

	profiles, err := m.List()
	if err == nil && len(profiles) > 0 {
		return profiles[0], nil
	}

	return nil, errors.New("no credentials found")
}

// List returns all stored profiles from all stores
func (m *Manager) List() ([]*Credentials, error) {
	profileMap := make(map[string]*Credentials)

	for _, store := range m.stores {
		profiles, err := store.List()
		if err != nil {
			continue
		}
		for _, creds := range profiles {
			if existing, ok := profileMap[creds.Profile]; !ok || creds.LastModified.After(existing.LastModified) {
				profileMap[creds.Profile] = creds
			}
		}
	}

	var result []*Credentials
	for _, creds := range profileMap {
		result = append(result, creds)
	}

	return result, nil
}

// Delete removes credentials from all stores
func (m *Manager) Delete(profile string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(profile); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if !deleted && lastErr != nil {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("credentials not found for profile: %s", profile)
	}

	return nil
}

// getConfigDir returns the configuration directory path
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "osugrab")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "osugrab")
	default: // Linux and others
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "osugrab")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "osugrab")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// Sanitize creates a copy of the credentials with secrets masked
func Sanitize(creds *Credentials) *Credentials {
	if creds == nil {
		return nil
	}

	return &Credentials{
		Profile:      creds.Profile,
		APIV1Key:     maskString(creds.APIV1Key),
		ClientID:     creds.ClientID,
		ClientSecret: maskString(creds.ClientSecret),
		LastModified: creds.LastModified,
	}
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
