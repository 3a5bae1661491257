package storage

import (
	"database/sql"
	"encoding/json"
	"errors"

	gerrors "github.com/gitgrind/gitgrind/pkg/errors"
)

// settingsKey is the single row holding the whole configuration document.
const settingsKey = "settings"

// RepoSettings identifies the solutions repository.
type RepoSettings struct {
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	DefaultBranch string `json:"defaultBranch,omitempty"`
}

// Configured reports whether a target repository has been linked.
func (r RepoSettings) Configured() bool {
	return r.Owner != "" && r.Name != ""
}

// AuthSettings holds the GitHub credentials.
type AuthSettings struct {
	Token    string `json:"token,omitempty"`
	Username string `json:"username,omitempty"`
}

// Configured reports whether an access token is present.
func (a AuthSettings) Configured() bool {
	return a.Token != ""
}

// Statistics accumulate across pushes and survive restarts.
type Statistics struct {
	Pushed       int            `json:"pushed"`
	Failed       int            `json:"failed"`
	LastPushedAt int64          `json:"lastPushedAt,omitempty"` // unix ms
	LastSlug     string         `json:"lastSlug,omitempty"`
	Languages    map[string]int `json:"languages,omitempty"`
}

// CountPush records one push outcome in the statistics.
func (st *Statistics) CountPush(slug, language string, nowMillis int64, ok bool) {
	if !ok {
		st.Failed++
		return
	}
	st.Pushed++
	st.LastPushedAt = nowMillis
	st.LastSlug = slug
	if language != "" {
		if st.Languages == nil {
			st.Languages = make(map[string]int)
		}
		st.Languages[language]++
	}
}

// Settings is the complete configuration document. It is stored as one JSON
// value and replaced wholesale on every save.
type Settings struct {
	Repo          RepoSettings `json:"repo"`
	Auth          AuthSettings `json:"auth"`
	UploadEnabled bool         `json:"uploadEnabled"`
	Statistics    Statistics   `json:"statistics"`
}

// DefaultSettings is the document for a fresh install: automatic uploads on,
// nothing linked yet.
func DefaultSettings() *Settings {
	return &Settings{UploadEnabled: true}
}

// LoadSettings reads the settings document, returning defaults when none has
// been saved yet.
func (s *Store) LoadSettings() (*Settings, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}

	var raw string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, settingsKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return nil, gerrors.Wrap(err, gerrors.ErrCodeStorageRead, "load settings")
	}

	var settings Settings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return nil, gerrors.Wrap(err, gerrors.ErrCodeStorageCorrupt, "decode settings document")
	}
	return &settings, nil
}

// SaveSettings replaces the settings document.
func (s *Store) SaveSettings(settings *Settings) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	if settings == nil {
		return gerrors.New(gerrors.ErrCodeInvalidInput, "settings cannot be nil")
	}

	raw, err := json.Marshal(settings)
	if err != nil {
		return gerrors.Wrap(err, gerrors.ErrCodeStorageWrite, "encode settings document")
	}
	_, err = s.db.Exec(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, settingsKey, string(raw))
	if err != nil {
		return gerrors.Wrap(err, gerrors.ErrCodeStorageWrite, "save settings")
	}
	return nil
}

// UpdateSettings applies mutate to the current document and saves the result.
// The whole cycle runs under a lock so concurrent updates cannot lose writes.
func (s *Store) UpdateSettings(mutate func(*Settings)) (*Settings, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()

	settings, err := s.LoadSettings()
	if err != nil {
		return nil, err
	}
	mutate(settings)
	if err := s.SaveSettings(settings); err != nil {
		return nil, err
	}
	return settings, nil
}
