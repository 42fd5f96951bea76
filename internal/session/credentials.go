package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/itteamcrypto-ai/x-scraper/api/types"
)

const credentialsFile = "session_credentials.json"

// CredentialStore persists the session credential triple to a local file.
// The record is read once at session-manager startup and overwritten
// wholesale on every successful re-authentication.
type CredentialStore struct {
	dir string
}

// NewCredentialStore returns a store rooted at the given data directory.
func NewCredentialStore(dir string) *CredentialStore {
	return &CredentialStore{dir: dir}
}

func (s *CredentialStore) path() string {
	return filepath.Join(s.dir, credentialsFile)
}

// Load reads the persisted credentials. A missing file yields empty
// credentials and no error.
func (s *CredentialStore) Load() (types.Credentials, error) {
	var creds types.Credentials
	data, err := os.ReadFile(s.path())
	if os.IsNotExist(err) {
		logrus.Debug("No persisted session credentials")
		return creds, nil
	}
	if err != nil {
		return creds, fmt.Errorf("read credentials file: %w", err)
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return creds, fmt.Errorf("unmarshal credentials: %w", err)
	}
	return creds, nil
}

// Save overwrites the persisted credentials atomically (write to a temp
// file in the same directory, then rename).
func (s *CredentialStore) Save(creds types.Credentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, credentialsFile+".*")
	if err != nil {
		return fmt.Errorf("create temp credentials file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp credentials file: %w", err)
	}
	if err := os.Rename(tmpName, s.path()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace credentials file: %w", err)
	}
	logrus.Debug("Saved session credentials")
	return nil
}
