package auth

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCredentialManager(t *testing.T) {
	manager, mockStore := NewMockManager()

	creds := &Credentials{
		Profile:      "default",
		APIV1Key:     "v1_key_1234567890abcdef",
		ClientID:     "12345",
		ClientSecret: "secret_67890abcdef",
		LastModified: time.Now(),
	}

	err := manager.Save(creds)
	if err != nil {
		t.Errorf("Failed to save credentials: %v", err)
	}

	retrieved, err := manager.Retrieve("default")
	if err != nil {
		t.Errorf("Failed to retrieve credentials: %v", err)
	}

	if retrieved.Profile != creds.Profile {
		t.Errorf("Profile mismatch: got %s, want %s", retrieved.Profile, creds.Profile)
	}
	if retrieved.APIV1Key != creds.APIV1Key {
		t.Errorf("APIV1Key mismatch: got %s, want %s", retrieved.APIV1Key, creds.APIV1Key)
	}
	if retrieved.ClientSecret != creds.ClientSecret {
		t.Errorf("ClientSecret mismatch: got %s, want %s", retrieved.ClientSecret, creds.ClientSecret)
	}

	profiles, err := manager.List()
	if err != nil {
		t.Errorf("Failed to list profiles: %v", err)
	}
	if len(profiles) == 0 {
		t.Error("Expected at least one profile in list")
	}

	sanitized := Sanitize(creds)
	if sanitized.APIV1Key == creds.APIV1Key {
		t.Error("APIV1Key should be masked")
	}
	if sanitized.ClientSecret == creds.ClientSecret {
		t.Error("ClientSecret should be masked")
	}
	if sanitized.ClientID != creds.ClientID {
		t.Error("ClientID should not be masked")
	}

	err = manager.Delete("default")
	if err != nil {
		t.Errorf("Failed to delete credentials: %v", err)
	}

	_, err = manager.Retrieve("default")
	if err == nil {
		t.Error("Expected error retrieving deleted credentials")
	}

	if mockStore.Count() != 0 {
		t.Errorf("Expected 0 profiles after deletion, got %d", mockStore.Count())
	}
}

func TestManagerSaveValidation(t *testing.T) {
	manager, _ := NewMockManager()

	cases := []struct {
		name  string
		creds *Credentials
	}{
		{"missing profile", &Credentials{APIV1Key: "k", ClientID: "1", ClientSecret: "s"}},
		{"missing client pair", &Credentials{Profile: "p", APIV1Key: "k"}},
		{"missing v1 key", &Credentials{Profile: "p", ClientID: "1", ClientSecret: "s"}},
	}
	for _, tc := range cases {
		if err := manager.Save(tc.creds); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestEncryptedFileStore(t *testing.T) {
	tempFile := filepath.Join(t.TempDir(), "test_creds.enc")

	os.Setenv("OSUGRAB_PASSPHRASE", "test_passphrase_123")
	defer os.Unsetenv("OSUGRAB_PASSPHRASE")

	store, err := NewEncryptedFileStore(tempFile)
	if err != nil {
		t.Fatalf("Failed to create encrypted store: %v", err)
	}

	creds := &Credentials{
		Profile:      "encrypted_profile",
		APIV1Key:     "encrypted_v1_key",
		ClientID:     "99999",
		ClientSecret: "encrypted_secret",
	}

	err = store.Save(creds)
	if err != nil {
		t.Errorf("Failed to save in encrypted file: %v", err)
	}

	retrieved, err := store.Retrieve("encrypted_profile")
	if err != nil {
		t.Errorf("Failed to retrieve from encrypted file: %v", err)
	}

	if retrieved.ClientSecret != creds.ClientSecret {
		t.Errorf("ClientSecret mismatch after encryption round trip")
	}

	// The file on disk must not leak plaintext secrets
	fileContent, err := os.ReadFile(tempFile)
	if err != nil {
		t.Fatal(err)
	}

	if bytes.Contains(fileContent, []byte("encrypted_v1_key")) {
		t.Error("File contains plaintext v1 API key")
	}
	if bytes.Contains(fileContent, []byte("encrypted_secret")) {
		t.Error("File contains plaintext client secret")
	}
}

func TestEnvironmentStore(t *testing.T) {
	os.Setenv("OSU_API_V1_KEY", "env_v1_key")
	os.Setenv("OSU_API_V2_CLIENT_ID", "env_client_id")
	os.Setenv("OSU_API_V2_CLIENT_SECRET", "env_client_secret")
	defer os.Unsetenv("OSU_API_V1_KEY")
	defer os.Unsetenv("OSU_API_V2_CLIENT_ID")
	defer os.Unsetenv("OSU_API_V2_CLIENT_SECRET")

	store := NewEnvironmentStore()

	creds, err := store.Retrieve("")
	if err != nil {
		t.Errorf("Failed to retrieve from environment: %v", err)
	}

	if creds.APIV1Key != "env_v1_key" {
		t.Errorf("APIV1Key mismatch: got %s, want env_v1_key", creds.APIV1Key)
	}
	if creds.ClientID != "env_client_id" {
		t.Errorf("ClientID mismatch: got %s, want env_client_id", creds.ClientID)
	}

	err = store.Save(&Credentials{})
	if err != ErrStoreUnavailable {
		t.Error("Expected ErrStoreUnavailable for environment store")
	}
}

func TestEnvironmentStoreIncomplete(t *testing.T) {
	os.Setenv("OSU_API_V1_KEY", "only_the_v1_key")
	defer os.Unsetenv("OSU_API_V1_KEY")
	os.Unsetenv("OSU_API_V2_CLIENT_ID")
	os.Unsetenv("OSU_API_V2_CLIENT_SECRET")

	store := NewEnvironmentStore()
	if _, err := store.Retrieve(""); err != ErrCredentialsNotFound {
		t.Errorf("Expected ErrCredentialsNotFound, got %v", err)
	}
	if store.Exists("") {
		t.Error("Partial environment should not count as existing credentials")
	}
}

func TestRealManagerWithEncryptedStore(t *testing.T) {
	tempDir := t.TempDir()

	os.Setenv("OSUGRAB_PASSPHRASE", "test_passphrase_real_manager")
	defer os.Unsetenv("OSUGRAB_PASSPHRASE")

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(tempDir, "credentials.enc"))
	if err != nil {
		t.Fatalf("Failed to create encrypted store: %v", err)
	}

	manager := NewMockManagerWithStores(encryptedStore)

	creds := &Credentials{
		Profile:      "tournament",
		APIV1Key:     "real_v1_key",
		ClientID:     "424242",
		ClientSecret: "real_client_secret",
		LastModified: time.Now(),
	}

	err = manager.Save(creds)
	if err != nil {
		t.Fatalf("Failed to save credentials: %v", err)
	}

	profiles, err := manager.List()
	if err != nil {
		t.Fatalf("Failed to list profiles: %v", err)
	}
	if len(profiles) != 1 {
		t.Errorf("Expected 1 profile in list, got %d", len(profiles))
	}

	retrieved, err := manager.Retrieve("tournament")
	if err != nil {
		t.Fatalf("Failed to retrieve credentials: %v", err)
	}

	if retrieved.Profile != creds.Profile {
		t.Errorf("Profile mismatch: got %s, want %s", retrieved.Profile, creds.Profile)
	}
	if retrieved.APIV1Key != creds.APIV1Key {
		t.Errorf("APIV1Key mismatch: got %s, want %s", retrieved.APIV1Key, creds.APIV1Key)
	}
}

func TestMockStore(t *testing.T) {
	store := NewMockStore()

	profiles, err := store.List()
	if err != nil {
		t.Errorf("Failed to list empty store: %v", err)
	}
	if len(profiles) != 0 {
		t.Errorf("Expected 0 profiles, got %d", len(profiles))
	}

	creds := &Credentials{
		Profile:      "mock_profile",
		APIV1Key:     "mock_v1_key",
		ClientID:     "777",
		ClientSecret: "mock_secret",
	}

	err = store.Save(creds)
	if err != nil {
		t.Errorf("Failed to save credentials: %v", err)
	}

	if store.Count() != 1 {
		t.Errorf("Expected 1 profile, got %d", store.Count())
	}

	if !store.Exists("mock_profile") {
		t.Error("Profile should exist")
	}

	store.ListError = fmt.Errorf("injected error")
	_, err = store.List()
	if err == nil || err.Error() != "injected error" {
		t.Error("Expected injected error")
	}
}
