// Package history records workflow detection runs in a bbolt database.
//
// Each repository owns a bucket whose keys start with a fixed-width UTC
// timestamp, so cursor order is chronological.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/temirov/flowscout/internal/classifier"
)

const (
	keyTimeLayoutConstant        = "2006-01-02T15:04:05.000000000Z"
	keySeparatorConstant         = "/"
	databaseDirectoryPermissions = 0o755
	databaseFilePermissions      = 0o600
	databaseOpenTimeout          = time.Second
	pathRequiredMessageConstant  = "history database path must be provided"
	repositoryRequiredMessage    = "history entry repository must be provided"
	openDatabaseErrorTemplate    = "failed to open history database %s: %w"
	createDirectoryErrorTemplate = "failed to create history directory %s: %w"
	recordEntryErrorTemplate     = "failed to record history entry: %w"
	listEntriesErrorTemplate     = "failed to list history entries: %w"
	decodeEntryErrorTemplate     = "failed to decode history entry %s: %w"
)

var (
	// ErrDatabasePathRequired indicates an empty database path.
	ErrDatabasePathRequired = errors.New(pathRequiredMessageConstant)
	// ErrRepositoryRequired indicates an entry without a repository identifier.
	ErrRepositoryRequired = errors.New(repositoryRequiredMessage)
)

// Entry is one recorded detection run.
type Entry struct {
	ID                string                  `json:"id" yaml:"id"`
	Repository        string                  `json:"repository" yaml:"repository"`
	Workflow          classifier.WorkflowType `json:"workflow" yaml:"workflow"`
	Confidence        float64                 `json:"confidence" yaml:"confidence"`
	MigrationDetected bool                    `json:"migration_detected" yaml:"migration_detected"`
	DetectedAt        time.Time               `json:"detected_at" yaml:"detected_at"`
}

// Store persists entries in bbolt.
type Store struct {
	database    *bbolt.DB
	idGenerator func() string
}

// Open opens or creates the database at databasePath.
func Open(databasePath string) (*Store, error) {
	trimmedPath := strings.TrimSpace(databasePath)
	if len(trimmedPath) == 0 {
		return nil, ErrDatabasePathRequired
	}

	databaseDirectory := filepath.Dir(trimmedPath)
	if directoryError := os.MkdirAll(databaseDirectory, databaseDirectoryPermissions); directoryError != nil {
		return nil, fmt.Errorf(createDirectoryErrorTemplate, databaseDirectory, directoryError)
	}

	database, openError := bbolt.Open(trimmedPath, databaseFilePermissions, &bbolt.Options{Timeout: databaseOpenTimeout})
	if openError != nil {
		return nil, fmt.Errorf(openDatabaseErrorTemplate, trimmedPath, openError)
	}
	return &Store{database: database, idGenerator: uuid.NewString}, nil
}

// Close releases the database.
func (store *Store) Close() error {
	return store.database.Close()
}

// Record stores the entry, assigning an ID when none is set, and returns the stored entry.
func (store *Store) Record(entry Entry) (Entry, error) {
	entry.Repository = strings.TrimSpace(entry.Repository)
	if len(entry.Repository) == 0 {
		return Entry{}, ErrRepositoryRequired
	}
	if len(entry.ID) == 0 {
		entry.ID = store.idGenerator()
	}
	entry.DetectedAt = entry.DetectedAt.UTC()

	encodedEntry, encodeError := json.Marshal(entry)
	if encodeError != nil {
		return Entry{}, fmt.Errorf(recordEntryErrorTemplate, encodeError)
	}

	updateError := store.database.Update(func(transaction *bbolt.Tx) error {
		bucket, bucketError := transaction.CreateBucketIfNotExists([]byte(entry.Repository))
		if bucketError != nil {
			return bucketError
		}
		return bucket.Put(entryKey(entry), encodedEntry)
	})
	if updateError != nil {
		return Entry{}, fmt.Errorf(recordEntryErrorTemplate, updateError)
	}
	return entry, nil
}

// List returns the newest entries for repository first. A non-positive limit returns every entry.
func (store *Store) List(repository string, limit int) ([]Entry, error) {
	entries := make([]Entry, 0)
	viewError := store.database.View(func(transaction *bbolt.Tx) error {
		bucket := transaction.Bucket([]byte(strings.TrimSpace(repository)))
		if bucket == nil {
			return nil
		}
		cursor := bucket.Cursor()
		for key, value := cursor.Last(); key != nil; key, value = cursor.Prev() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			var entry Entry
			if decodeError := json.Unmarshal(value, &entry); decodeError != nil {
				return fmt.Errorf(decodeEntryErrorTemplate, string(key), decodeError)
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if viewError != nil {
		return nil, fmt.Errorf(listEntriesErrorTemplate, viewError)
	}
	return entries, nil
}

// Repositories returns the repositories with recorded entries in key order.
func (store *Store) Repositories() ([]string, error) {
	repositories := make([]string, 0)
	viewError := store.database.View(func(transaction *bbolt.Tx) error {
		return transaction.ForEach(func(name []byte, _ *bbolt.Bucket) error {
			repositories = append(repositories, string(name))
			return nil
		})
	})
	if viewError != nil {
		return nil, fmt.Errorf(listEntriesErrorTemplate, viewError)
	}
	return repositories, nil
}

func entryKey(entry Entry) []byte {
	return []byte(entry.DetectedAt.UTC().Format(keyTimeLayoutConstant) + keySeparatorConstant + entry.ID)
}
