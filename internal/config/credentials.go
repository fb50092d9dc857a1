package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// TrackerCredentials is the locally stored tracker login. An absent or
// incomplete record means the tracker is not configured.
type TrackerCredentials struct {
	Site     string `yaml:"site"`
	Email    string `yaml:"email"`
	APIToken string `yaml:"api_token"`
}

// IsComplete reports whether all three values are present.
func (c TrackerCredentials) IsComplete() bool {
	return strings.TrimSpace(c.Site) != "" && strings.TrimSpace(c.Email) != "" && c.APIToken != ""
}

// TrackerCredentialsPath returns the location of the credential record.
func TrackerCredentialsPath() string {
	dir := Dir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "tracker.yaml")
}

// LoadTrackerCredentials reads the credential record and applies the
// FRAGSYNC_JIRA_* environment overrides. A missing file yields empty
// credentials and no error.
func LoadTrackerCredentials() (TrackerCredentials, error) {
	var creds TrackerCredentials

	if path := TrackerCredentialsPath(); path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return creds, fmt.Errorf("read tracker credentials: %w", err)
		default:
			if err := yaml.Unmarshal(data, &creds); err != nil {
				return creds, fmt.Errorf("parse tracker credentials: %w", err)
			}
		}
	}

	if val := os.Getenv("FRAGSYNC_JIRA_SITE"); val != "" {
		creds.Site = val
	}
	if val := os.Getenv("FRAGSYNC_JIRA_EMAIL"); val != "" {
		creds.Email = val
	}
	if val := os.Getenv("FRAGSYNC_JIRA_API_TOKEN"); val != "" {
		creds.APIToken = val
	}

	return creds, nil
}

// SaveTrackerCredentials writes the credential record, readable only by the owner.
func SaveTrackerCredentials(creds TrackerCredentials) error {
	path := TrackerCredentialsPath()
	if path == "" {
		return fmt.Errorf("cannot determine home directory")
	}

	data, err := yaml.Marshal(creds)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// ClearTrackerCredentials removes the credential record. Removing a record
// that does not exist is not an error.
func ClearTrackerCredentials() error {
	path := TrackerCredentialsPath()
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
