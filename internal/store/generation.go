package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/parloop/internal/ir"
)

// ErrNotFound is returned when a generation does not exist.
var ErrNotFound = errors.New("generation not found")

// Generation records one lowered kernel.
type Generation struct {
	ID string `json:"id"`
	// Seq orders generations. Zero asks RecordGeneration to assign the next
	// value.
	Seq         int64    `json:"seq"`
	Kernel      string   `json:"kernel"`
	Function    string   `json:"function"`
	Workers     []string `json:"workers"`
	ModuleHash  string   `json:"module_hash"`
	NumThreads  int32    `json:"num_threads"`
	Schedule    string   `json:"schedule"`
	Diagnostics []string `json:"diagnostics"`
}

// IDGenerator produces generation IDs.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 IDs.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// RecordGeneration inserts a generation record and returns it with its
// sequence number. Uses ON CONFLICT(id) DO NOTHING for idempotency: recording
// the same ID twice keeps the first record.
func (s *Store) RecordGeneration(ctx context.Context, g Generation) (Generation, error) {
	if g.ID == "" {
		return g, fmt.Errorf("record generation: id is required")
	}
	workers, err := marshalList(g.Workers)
	if err != nil {
		return g, fmt.Errorf("record generation: %w", err)
	}
	diags, err := marshalList(g.Diagnostics)
	if err != nil {
		return g, fmt.Errorf("record generation: %w", err)
	}

	var seq any
	if g.Seq != 0 {
		seq = g.Seq
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO generations
		(id, seq, kernel, function, workers, module_hash, num_threads, schedule, diagnostics)
		VALUES (?, COALESCE(?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM generations)), ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		g.ID,
		seq,
		g.Kernel,
		g.Function,
		workers,
		g.ModuleHash,
		g.NumThreads,
		g.Schedule,
		diags,
	)
	if err != nil {
		return g, fmt.Errorf("record generation: %w", err)
	}
	return s.GetGeneration(ctx, g.ID)
}

// GetGeneration returns the generation with the given ID.
func (s *Store) GetGeneration(ctx context.Context, id string) (Generation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, seq, kernel, function, workers, module_hash, num_threads, schedule, diagnostics
		FROM generations
		WHERE id = ?
	`, id)
	g, err := scanGeneration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Generation{}, fmt.Errorf("get generation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Generation{}, fmt.Errorf("get generation %s: %w", id, err)
	}
	return g, nil
}

// ListGenerations returns the recorded generations of a kernel, or of all
// kernels when kernel is empty, oldest first.
//
// Returns an empty slice (not nil) if nothing was recorded.
func (s *Store) ListGenerations(ctx context.Context, kernel string) ([]Generation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, kernel, function, workers, module_hash, num_threads, schedule, diagnostics
		FROM generations
		WHERE ? = '' OR kernel = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, kernel, kernel)
	if err != nil {
		return nil, fmt.Errorf("query generations: %w", err)
	}
	defer rows.Close()

	gens := []Generation{}
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		gens = append(gens, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate generations: %w", err)
	}
	return gens, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGeneration(row scanner) (Generation, error) {
	var g Generation
	var workers, diags string
	err := row.Scan(&g.ID, &g.Seq, &g.Kernel, &g.Function, &workers,
		&g.ModuleHash, &g.NumThreads, &g.Schedule, &diags)
	if err != nil {
		return g, err
	}
	if err := json.Unmarshal([]byte(workers), &g.Workers); err != nil {
		return g, fmt.Errorf("unmarshal workers: %w", err)
	}
	if err := json.Unmarshal([]byte(diags), &g.Diagnostics); err != nil {
		return g, fmt.Errorf("unmarshal diagnostics: %w", err)
	}
	return g, nil
}

// marshalList stores nil as an empty array so reads never return nil.
func marshalList(vs []string) (string, error) {
	if vs == nil {
		vs = []string{}
	}
	data, err := ir.MarshalCanonical(vs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
