// Package sigstore persists class signatures between generation runs.
//
// Extraction produces a stable signature per class (decl.Signature);
// the store keeps the hash of the last accepted surface so later runs
// can tell which classes changed, appeared, or disappeared without
// re-reading any generated code.
package sigstore

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/refract-io/refract/decl"
)

// ErrNotRecorded indicates the requested class has no stored signature.
var ErrNotRecorded = errors.New("class not recorded")

// Stale reasons, as shown to the user by the check command.
const (
	ReasonUnrecorded = "never recorded"
	ReasonChanged    = "signature changed"
	ReasonRemoved    = "no longer declared"
)

// Stale names one class whose recorded signature no longer matches the
// extracted surface.
type Stale struct {
	Class  string
	Reason string
}

func (s Stale) String() string { return s.Class + ": " + s.Reason }

// Entry is one stored signature row.
type Entry struct {
	Class         string
	QualifiedName string
	Hash          string
	Signature     string
	UpdatedAt     time.Time
}

// Store keeps signatures in a SQLite file.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the signature database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS signatures (
		class TEXT PRIMARY KEY,
		qualified TEXT NOT NULL,
		hash TEXT NOT NULL,
		signature TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record stores the current signature of cd, replacing any previous
// row for the class.
func (s *Store) Record(cd *decl.ClassDecl) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO signatures (class, qualified, hash, signature, updated_at) VALUES (?, ?, ?, ?, ?)",
		cd.Name, cd.QualifiedName, decl.Hash(cd), decl.Signature(cd),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording %s: %w", cd.Name, err)
	}
	return nil
}

// RecordSet stores the signature of every class in set.
func (s *Store) RecordSet(set *decl.Set) error {
	for _, cd := range set.Decls {
		if err := s.Record(cd); err != nil {
			return err
		}
	}
	return nil
}

// Recorded returns the stored row for a class.
func (s *Store) Recorded(class string) (*Entry, error) {
	var e Entry
	var updated string
	err := s.db.QueryRow(
		"SELECT class, qualified, hash, signature, updated_at FROM signatures WHERE class = ?",
		class,
	).Scan(&e.Class, &e.QualifiedName, &e.Hash, &e.Signature, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotRecorded
		}
		return nil, fmt.Errorf("querying %s: %w", class, err)
	}
	if t, err := time.Parse(time.RFC3339, updated); err == nil {
		e.UpdatedAt = t
	}
	return &e, nil
}

// Forget drops the stored row for a class.
func (s *Store) Forget(class string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM signatures WHERE class = ?", class); err != nil {
		return fmt.Errorf("forgetting %s: %w", class, err)
	}
	return nil
}

// Classes returns every recorded class name in sorted order.
func (s *Store) Classes() ([]string, error) {
	rows, err := s.db.Query("SELECT class FROM signatures ORDER BY class")
	if err != nil {
		return nil, fmt.Errorf("querying classes: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning class: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Stale compares set against the stored signatures and returns every
// class that is new, changed, or recorded but no longer declared,
// sorted by class name. An empty result means generated bindings are
// current.
func (s *Store) Stale(set *decl.Set) ([]Stale, error) {
	recorded, err := s.hashes()
	if err != nil {
		return nil, err
	}

	var stale []Stale
	current := make(map[string]bool, len(set.Decls))
	for _, cd := range set.Decls {
		current[cd.Name] = true
		hash, ok := recorded[cd.Name]
		switch {
		case !ok:
			stale = append(stale, Stale{Class: cd.Name, Reason: ReasonUnrecorded})
		case hash != decl.Hash(cd):
			stale = append(stale, Stale{Class: cd.Name, Reason: ReasonChanged})
		}
	}
	for class := range recorded {
		if !current[class] {
			stale = append(stale, Stale{Class: class, Reason: ReasonRemoved})
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].Class < stale[j].Class })
	return stale, nil
}

func (s *Store) hashes() (map[string]string, error) {
	rows, err := s.db.Query("SELECT class, hash FROM signatures")
	if err != nil {
		return nil, fmt.Errorf("querying signatures: %w", err)
	}
	defer rows.Close()

	m := make(map[string]string)
	for rows.Next() {
		var class, hash string
		if err := rows.Scan(&class, &hash); err != nil {
			return nil, fmt.Errorf("scanning signature: %w", err)
		}
		m[class] = hash
	}
	return m, rows.Err()
}
