// Package debuginfo persists program debug info in a SQLite database so
// that tooling can symbolize programs loaded without their side table.
package debuginfo

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/chazu/regvm/pkg/bytecode"
)

// ErrProgramNotFound indicates no debug info is stored for a program.
var ErrProgramNotFound = errors.New("debug info not found")

// programNamespace scopes name-based program ids.
var programNamespace = uuid.MustParse("5c0d5a4e-2f0b-4b8e-9a51-3f2a7c1e6d90")

// ProgramID derives a stable id from a program's serialized form. Two
// programs with identical bytecode share an id.
func ProgramID(p *bytecode.Program) (string, error) {
	code, err := p.Serialize()
	if err != nil {
		return "", fmt.Errorf("serializing program: %w", err)
	}
	return uuid.NewSHA1(programNamespace, code).String(), nil
}

// Entry summarizes one stored program.
type Entry struct {
	ID        string
	File      string
	Functions int
	Locations int
	SavedAt   time.Time
}

// Store handles SQLite storage for debug info.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS programs (
		id TEXT PRIMARY KEY,
		file TEXT NOT NULL,
		saved_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS locations (
		program_id TEXT NOT NULL REFERENCES programs(id) ON DELETE CASCADE,
		instruction INTEGER NOT NULL,
		line INTEGER NOT NULL,
		col INTEGER NOT NULL,
		PRIMARY KEY (program_id, instruction)
	)`,
	`CREATE TABLE IF NOT EXISTS functions (
		program_id TEXT NOT NULL REFERENCES programs(id) ON DELETE CASCADE,
		entry INTEGER NOT NULL,
		name TEXT NOT NULL,
		PRIMARY KEY (program_id, entry)
	)`,
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps the pragmas below in effect.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA foreign_keys = ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting %q: %w", pragma, err)
		}
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating tables: %w", err)
		}
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save replaces the debug info stored under id.
func (s *Store) Save(id string, d *bytecode.DebugInfo) error {
	if d == nil {
		return errors.New("saving debug info: nil debug info")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("saving debug info: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"locations", "functions"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE program_id = ?", id); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO programs (id, file, saved_at) VALUES (?, ?, ?)",
		id, d.File, time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("saving program: %w", err)
	}

	for _, loc := range d.Locations {
		if _, err := tx.Exec(
			"INSERT OR REPLACE INTO locations (program_id, instruction, line, col) VALUES (?, ?, ?, ?)",
			id, int64(loc.Instruction), loc.Line, loc.Column,
		); err != nil {
			return fmt.Errorf("saving location %d: %w", loc.Instruction, err)
		}
	}
	for _, fn := range d.Functions {
		if _, err := tx.Exec(
			"INSERT OR REPLACE INTO functions (program_id, entry, name) VALUES (?, ?, ?)",
			id, int64(fn.Entry), fn.Name,
		); err != nil {
			return fmt.Errorf("saving function %s: %w", fn.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("saving debug info: %w", err)
	}
	return nil
}

// SaveProgram stores d under the program's derived id and returns the id.
func (s *Store) SaveProgram(p *bytecode.Program, d *bytecode.DebugInfo) (string, error) {
	id, err := ProgramID(p)
	if err != nil {
		return "", err
	}
	return id, s.Save(id, d)
}

// Load retrieves the debug info stored under id.
func (s *Store) Load(id string) (*bytecode.DebugInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := &bytecode.DebugInfo{}
	err := s.db.QueryRow("SELECT file FROM programs WHERE id = ?", id).Scan(&d.File)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProgramNotFound
		}
		return nil, fmt.Errorf("querying program: %w", err)
	}

	rows, err := s.db.Query(
		"SELECT instruction, line, col FROM locations WHERE program_id = ? ORDER BY instruction", id)
	if err != nil {
		return nil, fmt.Errorf("querying locations: %w", err)
	}
	for rows.Next() {
		var (
			instr int64
			loc   bytecode.SourceLocation
		)
		if err := rows.Scan(&instr, &loc.Line, &loc.Column); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning location: %w", err)
		}
		loc.Instruction = uint64(instr)
		d.Locations = append(d.Locations, loc)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("reading locations: %w", err)
	}

	rows, err = s.db.Query(
		"SELECT entry, name FROM functions WHERE program_id = ? ORDER BY entry", id)
	if err != nil {
		return nil, fmt.Errorf("querying functions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			entry int64
			fn    bytecode.FunctionSymbol
		)
		if err := rows.Scan(&entry, &fn.Name); err != nil {
			return nil, fmt.Errorf("scanning function: %w", err)
		}
		fn.Entry = uint64(entry)
		d.Functions = append(d.Functions, fn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading functions: %w", err)
	}
	return d, nil
}

// LoadProgram retrieves the debug info stored for p.
func (s *Store) LoadProgram(p *bytecode.Program) (*bytecode.DebugInfo, error) {
	id, err := ProgramID(p)
	if err != nil {
		return nil, err
	}
	return s.Load(id)
}

// Delete removes the debug info stored under id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("deleting program: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM programs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting program: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrProgramNotFound
	}
	for _, table := range []string{"locations", "functions"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE program_id = ?", id); err != nil {
			return fmt.Errorf("deleting %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("deleting program: %w", err)
	}
	return nil
}

// List returns a summary of every stored program, newest first.
func (s *Store) List() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
SELECT p.id, p.file, p.saved_at,
	(SELECT COUNT(*) FROM functions f WHERE f.program_id = p.id),
	(SELECT COUNT(*) FROM locations l WHERE l.program_id = p.id)
FROM programs p
ORDER BY p.saved_at DESC, p.id`)
	if err != nil {
		return nil, fmt.Errorf("listing programs: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e     Entry
			saved int64
		)
		if err := rows.Scan(&e.ID, &e.File, &saved, &e.Functions, &e.Locations); err != nil {
			return nil, fmt.Errorf("scanning program: %w", err)
		}
		e.SavedAt = time.Unix(saved, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}
