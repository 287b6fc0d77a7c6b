package providers

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStoreCredentialFallsBackToFileWhenKeyringUnavailable(t *testing.T) {
	origGet := keyringGet
	origSet := keyringSet
	origHome := userHomeDir
	defer func() {
		keyringGet = origGet
		keyringSet = origSet
		userHomeDir = origHome
	}()

	tmpHome := t.TempDir()
	userHomeDir = func() (string, error) { return tmpHome, nil }
	keyringSet = func(service, user, password string) error { return errors.New("keyring unavailable") }
	keyringGet = func(service, user string) (string, error) { return "", errors.New("keyring unavailable") }

	if err := StoreCredential("openai", "sk-test"); err != nil {
		t.Fatalf("store credential: %v", err)
	}

	credentialPath := filepath.Join(tmpHome, ".config", "pilot", "credentials.json")
	info, err := os.Stat(credentialPath)
	if err != nil {
		t.Fatalf("stat credential file: %v", err)
	}
	if got := info.Mode().Perm(); got != 0o600 {
		t.Fatalf("expected credential file mode 0600, got %o", got)
	}

	got, err := LoadCredential("openai")
	if err != nil {
		t.Fatalf("load credential: %v", err)
	}
	if got != "sk-test" {
		t.Fatalf("expected stored credential, got %q", got)
	}
}

func TestStoreCredentialUsesKeyringWhenAvailable(t *testing.T) {
	origGet := keyringGet
	origSet := keyringSet
	origHome := userHomeDir
	defer func() {
		keyringGet = origGet
		keyringSet = origSet
		userHomeDir = origHome
	}()

	tmpHome := t.TempDir()
	userHomeDir = func() (string, error) { return tmpHome, nil }

	keyringValues := make(map[string]string)
	keyringSet = func(service, user, password string) error {
		keyringValues[user] = password
		return nil
	}
	keyringGet = func(service, user string) (string, error) {
		value := keyringValues[user]
		if value == "" {
			return "", errors.New("not found")
		}
		return value, nil
	}

	if err := StoreCredential("anthropic", "sk-ant"); err != nil {
		t.Fatalf("store credential: %v", err)
	}
	if got := keyringValues["anthropic"]; got != "sk-ant" {
		t.Fatalf("expected keyring value persisted, got %q", got)
	}
	credentialPath := filepath.Join(tmpHome, ".config", "pilot", "credentials.json")
	if _, err := os.Stat(credentialPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no fallback file, got %v", err)
	}

	got, err := LoadCredential("anthropic")
	if err != nil {
		t.Fatalf("load credential: %v", err)
	}
	if got != "sk-ant" {
		t.Fatalf("expected keyring credential, got %q", got)
	}
}

func TestLoadCredentialMissing(t *testing.T) {
	origGet := keyringGet
	origHome := userHomeDir
	defer func() {
		keyringGet = origGet
		userHomeDir = origHome
	}()

	userHomeDir = func() (string, error) { return t.TempDir(), nil }
	keyringGet = func(service, user string) (string, error) { return "", errors.New("not found") }

	if _, err := LoadCredential("gemini"); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound, got %v", err)
	}
}

func TestDeleteCredentialRemovesBothStores(t *testing.T) {
	origGet := keyringGet
	origSet := keyringSet
	origDelete := keyringDelete
	origHome := userHomeDir
	defer func() {
		keyringGet = origGet
		keyringSet = origSet
		keyringDelete = origDelete
		userHomeDir = origHome
	}()

	tmpHome := t.TempDir()
	userHomeDir = func() (string, error) { return tmpHome, nil }

	keyringValues := map[string]string{"openai": "sk-ring"}
	keyringGet = func(service, user string) (string, error) {
		value := keyringValues[user]
		if value == "" {
			return "", errors.New("not found")
		}
		return value, nil
	}
	keyringSet = func(service, user, password string) error {
		keyringValues[user] = password
		return nil
	}
	keyringDelete = func(service, user string) error {
		delete(keyringValues, user)
		return nil
	}

	// Mirror a stale fallback-file entry alongside the keyring one.
	credentialPath := filepath.Join(tmpHome, ".config", "pilot", "credentials.json")
	if err := os.MkdirAll(filepath.Dir(credentialPath), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(credentialPath, []byte(`{"openai": "sk-file"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := DeleteCredential("openai"); err != nil {
		t.Fatalf("delete credential: %v", err)
	}
	if _, ok := keyringValues["openai"]; ok {
		t.Fatal("keyring entry survived delete")
	}
	if _, err := LoadCredential("openai"); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound after delete, got %v", err)
	}
}

func TestDeleteCredentialMissingIsNoError(t *testing.T) {
	origDelete := keyringDelete
	origHome := userHomeDir
	defer func() {
		keyringDelete = origDelete
		userHomeDir = origHome
	}()

	tmpHome := t.TempDir()
	userHomeDir = func() (string, error) { return tmpHome, nil }
	keyringDelete = func(service, user string) error { return errors.New("no keyring") }

	if err := DeleteCredential("gemini"); err != nil {
		t.Fatalf("deleting an absent credential should be a no-op, got %v", err)
	}
}
