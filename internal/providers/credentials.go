package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

const credentialService = "pilot"

var ErrCredentialNotFound = errors.New("credential not found")

var (
	credentialFileMu sync.Mutex
	keyringGet       = keyring.Get
	keyringSet       = keyring.Set
	keyringDelete    = keyring.Delete
	userHomeDir      = os.UserHomeDir
)

// StoreCredential saves an API key under the provider name, preferring the
// OS keyring and falling back to a 0600 JSON file when no keyring is
// available (headless boxes, CI).
func StoreCredential(provider, key string) error {
	provider = strings.TrimSpace(provider)
	key = strings.TrimSpace(key)
	if provider == "" {
		return errors.New("credential provider name is empty")
	}
	if key == "" {
		return errors.New("credential value is empty")
	}

	if err := keyringSet(credentialService, provider, key); err == nil {
		return nil
	}

	credentialFileMu.Lock()
	defer credentialFileMu.Unlock()

	entries, err := readCredentialFileUnlocked()
	if err != nil {
		return err
	}
	entries[provider] = key
	return writeCredentialFileUnlocked(entries)
}

// LoadCredential retrieves the API key stored for a provider.
func LoadCredential(provider string) (string, error) {
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return "", errors.New("credential provider name is empty")
	}

	if key, err := keyringGet(credentialService, provider); err == nil {
		key = strings.TrimSpace(key)
		if key != "" {
			return key, nil
		}
	}

	credentialFileMu.Lock()
	defer credentialFileMu.Unlock()

	entries, err := readCredentialFileUnlocked()
	if err != nil {
		return "", err
	}
	key := strings.TrimSpace(entries[provider])
	if key == "" {
		return "", ErrCredentialNotFound
	}
	return key, nil
}

// DeleteCredential removes the stored key for a provider from both the OS
// keyring and the fallback file. A credential that was never stored is not
// an error.
func DeleteCredential(provider string) error {
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return errors.New("credential provider name is empty")
	}

	// A missing keyring (headless box) or a missing entry is fine; the
	// fallback file is cleaned either way.
	_ = keyringDelete(credentialService, provider)

	credentialFileMu.Lock()
	defer credentialFileMu.Unlock()

	entries, err := readCredentialFileUnlocked()
	if err != nil {
		return err
	}
	if _, ok := entries[provider]; !ok {
		return nil
	}
	delete(entries, provider)
	return writeCredentialFileUnlocked(entries)
}

func credentialFilePath() (string, error) {
	home, err := userHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	home = strings.TrimSpace(home)
	if home == "" {
		return "", errors.New("home directory is empty")
	}
	return filepath.Join(home, ".config", "pilot", "credentials.json"), nil
}

func readCredentialFileUnlocked() (map[string]string, error) {
	path, err := credentialFilePath()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credential file: %w", err)
	}
	if strings.TrimSpace(string(raw)) == "" {
		return map[string]string{}, nil
	}
	entries := make(map[string]string)
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode credential file: %w", err)
	}
	clean := make(map[string]string, len(entries))
	for k, v := range entries {
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		clean[k] = v
	}
	return clean, nil
}

func writeCredentialFileUnlocked(entries map[string]string) error {
	path, err := credentialFilePath()
	if err != nil {
		return err
	}
	if entries == nil {
		entries = map[string]string{}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create credential directory: %w", err)
	}
	payload, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credential file: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, payload, 0o600); err != nil {
		return fmt.Errorf("write credential temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace credential file: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("set credential file permissions: %w", err)
	}
	return nil
}
