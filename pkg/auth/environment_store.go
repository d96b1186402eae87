package auth

import (
	"os"
	"time"
)

// EnvironmentStore implements Store using environment variables. The
// variable names match the original .env deployment, so existing setups
// keep working.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Save is not supported for environment variables
func (e *EnvironmentStore) Save(creds *Credentials) error {
	return ErrStoreUnavailable
}

// Retrieve gets credentials from environment variables
func (e *EnvironmentStore) Retrieve(profile string) (*Credentials, error) {
	apiV1Key := os.Getenv("OSU_API_V1_KEY")
	clientID := os.Getenv("OSU_API_V2_CLIENT_ID")
	clientSecret := os.Getenv("OSU_API_V2_CLIENT_SECRET")

	if apiV1Key == "" || clientID == "" || clientSecret == "" {
		return nil, ErrCredentialsNotFound
	}

	if profile == "" {
		profile = "default"
	}

	return &Credentials{
		Profile:      profile,
		APIV1Key:     apiV1Key,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		LastModified: time.Now(),
	}, nil
}

// List returns a single profile if environment variables are set
func (e *EnvironmentStore) List() ([]*Credentials, error) {
	creds, err := e.Retrieve("")
	if err != nil {
		return []*Credentials{}, nil
	}
	return []*Credentials{creds}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(profile string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(profile string) bool {
	return os.Getenv("OSU_API_V1_KEY") != "" &&
		os.Getenv("OSU_API_V2_CLIENT_ID") != "" &&
		os.Getenv("OSU_API_V2_CLIENT_SECRET") != ""
}
