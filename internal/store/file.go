package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/restream-tools/restreamctl/internal/auth"
	"github.com/restream-tools/restreamctl/internal/util"
)

// tokenFile is the on-disk shape. The expiry is stored as the relative
// expires_in together with the save timestamp; the absolute expiry is
// recomputed at load time.
type tokenFile struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	SavedAt      string `json:"saved_at,omitempty"`
}

// FileTokenStore persists the token record as owner-only JSON at a fixed
// path under the user's config directory.
type FileTokenStore struct {
	mu   sync.Mutex
	path string
}

// DefaultTokenPath returns the standard location of the token file,
// falling back to a directory-local path when no config dir is resolvable.
func DefaultTokenPath() string {
	if base, err := os.UserConfigDir(); err == nil {
		return filepath.Join(base, "restreamctl", "tokens.json")
	}
	return filepath.Join(".restreamctl", "tokens.json")
}

// NewFileTokenStore creates a file-backed store at path. An empty path
// selects DefaultTokenPath.
func NewFileTokenStore(path string) *FileTokenStore {
	if strings.TrimSpace(path) == "" {
		path = DefaultTokenPath()
	}
	return &FileTokenStore{path: util.ExpandHome(path)}
}

// Path returns the resolved token file location.
func (s *FileTokenStore) Path() string {
	return s.path
}

// Save writes the record, creating the directory with owner-only
// permissions and restricting the file to 0600. An existing file,
// including a corrupt one, is overwritten.
func (s *FileTokenStore) Save(_ context.Context, record *auth.TokenRecord) error {
	if record == nil || record.AccessToken == "" {
		return errors.New("token store: record must carry an access token")
	}

	now := time.Now()
	payload := tokenFile{
		AccessToken:  record.AccessToken,
		RefreshToken: record.RefreshToken,
		SavedAt:      now.Format(time.RFC3339),
	}
	if !record.ExpiresAt.IsZero() {
		payload.ExpiresIn = int64(record.ExpiresAt.Sub(now).Seconds())
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("token store: marshal record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err = os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("token store: create config directory: %w", err)
	}
	if err = os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("token store: write token file: %w", err)
	}
	// WriteFile does not change the mode of a pre-existing file.
	if err = os.Chmod(s.path, 0o600); err != nil {
		return fmt.Errorf("token store: restrict token file permissions: %w", err)
	}
	return nil
}

// Load reads the record back. A missing, unreadable, or unparsable file is
// an absent session, never an error.
func (s *FileTokenStore) Load(_ context.Context) (*auth.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Debugf("token file %s unreadable, treating as no session: %v", s.path, err)
		}
		return nil, nil
	}

	var payload tokenFile
	if err = json.Unmarshal(data, &payload); err != nil {
		log.Debugf("token file %s unparsable, treating as no session: %v", s.path, err)
		return nil, nil
	}
	if payload.AccessToken == "" {
		return nil, nil
	}

	record := &auth.TokenRecord{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
	}
	if payload.ExpiresIn > 0 {
		base := time.Now()
		if payload.SavedAt != "" {
			if saved, errParse := time.Parse(time.RFC3339, payload.SavedAt); errParse == nil {
				base = saved
			}
		}
		record.ExpiresAt = base.Add(time.Duration(payload.ExpiresIn) * time.Second)
	}
	return record, nil
}

// Clear removes the token file. A missing file is not an error.
func (s *FileTokenStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("token store: remove token file: %w", err)
	}
	return nil
}
