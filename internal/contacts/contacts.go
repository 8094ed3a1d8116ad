package contacts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

// Contact is one ordered entry of a dialing list. The engine treats lists as
// read-only: list management lives elsewhere, this package only needs ordinal
// access and the dispatch payload fields.
type Contact struct {
	ListID   string `json:"list_id" db:"list_id"`
	Position int    `json:"position" db:"position"`

	// Phone is E.164 where possible.
	Phone string `json:"phone" db:"phone"`

	// Fields carries arbitrary per-contact variables (stored as JSONB)
	// forwarded to the provider as dispatch parameters.
	Fields map[string]string `json:"fields,omitempty" db:"fields"`
}

var (
	ErrNotFound        = errors.New("contact not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Source provides ordinal access to a contact list.
type Source interface {
	// Count returns the list length.
	Count(ctx context.Context, listID string) (int, error)

	// At returns the contact at ordinal position i (0-based).
	At(ctx context.Context, listID string, i int) (Contact, error)
}

// PGSource reads contacts from Postgres.
//
// NOTE: assumes a `contacts` table with UNIQUE (list_id, position) and a
// JSONB `fields` column. Positions are dense, 0-based.
type PGSource struct {
	db *sql.DB
}

func NewPGSource(db *sql.DB) *PGSource {
	return &PGSource{db: db}
}

func (s *PGSource) Count(ctx context.Context, listID string) (int, error) {
	if listID == "" {
		return 0, ErrInvalidArgument
	}
	const q = `SELECT COUNT(*) FROM contacts WHERE list_id = $1`
	var n int
	err := s.db.QueryRowContext(ctx, q, listID).Scan(&n)
	return n, err
}

func (s *PGSource) At(ctx context.Context, listID string, i int) (Contact, error) {
	if listID == "" || i < 0 {
		return Contact{}, ErrInvalidArgument
	}
	const q = `SELECT list_id, position, phone, fields FROM contacts WHERE list_id = $1 AND position = $2`
	var c Contact
	var fields []byte
	err := s.db.QueryRowContext(ctx, q, listID, i).Scan(&c.ListID, &c.Position, &c.Phone, &fields)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Contact{}, ErrNotFound
		}
		return Contact{}, err
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &c.Fields); err != nil {
			return Contact{}, err
		}
	}
	return c, nil
}

// MemorySource is an in-memory Source for tests.
type MemorySource struct {
	Lists map[string][]Contact
}

func NewMemorySource() *MemorySource {
	return &MemorySource{Lists: map[string][]Contact{}}
}

func (s *MemorySource) Count(ctx context.Context, listID string) (int, error) {
	if listID == "" {
		return 0, ErrInvalidArgument
	}
	return len(s.Lists[listID]), nil
}

func (s *MemorySource) At(ctx context.Context, listID string, i int) (Contact, error) {
	if listID == "" || i < 0 {
		return Contact{}, ErrInvalidArgument
	}
	l := s.Lists[listID]
	if i >= len(l) {
		return Contact{}, ErrNotFound
	}
	return l[i], nil
}
