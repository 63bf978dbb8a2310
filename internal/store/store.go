package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/beekhof/ics-tasks-sync/internal/auth"
	"gopkg.in/yaml.v3"
)

// ErrUnknownUser is returned when an update names a user with no auth record.
var ErrUnknownUser = errors.New("unknown user")

// AuthRecord is the per-user authorization record.
type AuthRecord struct {
	Email      string          `yaml:"email"`
	Credential auth.Credential `yaml:"credential"`
	LastSync   *time.Time      `yaml:"last_sync,omitempty"`
}

// LinkRecord associates a user with their calendar feed.
type LinkRecord struct {
	Email  string `yaml:"email"`
	ICSURL string `yaml:"ics_url"`
}

// Document is the on-disk layout of the store file.
type Document struct {
	Users []AuthRecord `yaml:"users"`
	Links []LinkRecord `yaml:"links"`
}

// User is an auth record joined with its link record.
type User struct {
	Email       string
	Credential  auth.Credential
	LastSync    *time.Time
	CalendarURL string
	// Linked is false when the user has no link record at all.
	Linked bool
}

// FileStore is a YAML file-based implementation of the user store.
// It is safe for concurrent use within one process.
type FileStore struct {
	Path string

	mu sync.Mutex
}

// NewFileStore creates a new FileStore with the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads the store file. A missing file is an empty store.
func (store *FileStore) Load() (*Document, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.load()
}

// Save replaces the store file with doc.
func (store *FileStore) Save(doc *Document) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.save(doc)
}

// Users returns every auth record joined with its link by email, in file order.
// Emails are compared case-insensitively.
func (store *FileStore) Users() ([]User, error) {
	doc, err := store.Load()
	if err != nil {
		return nil, err
	}

	links := make(map[string]string, len(doc.Links))
	for _, link := range doc.Links {
		links[emailKey(link.Email)] = link.ICSURL
	}

	users := make([]User, 0, len(doc.Users))
	for _, record := range doc.Users {
		url, linked := links[emailKey(record.Email)]
		users = append(users, User{
			Email:       record.Email,
			Credential:  record.Credential,
			LastSync:    record.LastSync,
			CalendarURL: strings.TrimSpace(url),
			Linked:      linked,
		})
	}
	return users, nil
}

// SaveCredential replaces the stored credential of email.
func (store *FileStore) SaveCredential(email string, cred auth.Credential) error {
	return store.update(email, func(record *AuthRecord) {
		record.Credential = cred
	})
}

// MarkSynced records at as the last successful sync of email.
func (store *FileStore) MarkSynced(email string, at time.Time) error {
	at = at.UTC()
	return store.update(email, func(record *AuthRecord) {
		record.LastSync = &at
	})
}

func (store *FileStore) update(email string, apply func(*AuthRecord)) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	doc, err := store.load()
	if err != nil {
		return err
	}

	for i := range doc.Users {
		if emailKey(doc.Users[i].Email) == emailKey(email) {
			apply(&doc.Users[i])
			return store.save(doc)
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownUser, email)
}

func (store *FileStore) load() (*Document, error) {
	data, err := os.ReadFile(store.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Document{}, nil
		}
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal store file: %w", err)
	}
	return &doc, nil
}

// save writes doc through a temp file and rename so a crash never leaves a
// truncated store. The file holds tokens and is kept at 0600.
func (store *FileStore) save(doc *Document) error {
	if doc == nil {
		return errors.New("store document is nil")
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal store file: %w", err)
	}

	dir := filepath.Dir(store.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".icstasks-store-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp store file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("failed to set store file permissions: %w", err)
	}
	if err := os.Rename(tmpName, store.Path); err != nil {
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
