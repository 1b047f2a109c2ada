package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/openlots/gatekeeper/internal/db"
)

type GateStore struct {
	db     *sql.DB
	writer *dbpkg.Writer
}

func NewGateStore(db *sql.DB, writer *dbpkg.Writer) *GateStore {
	return &GateStore{db: db, writer: writer}
}

// IsKnown treats "known" as commissioned + enabled + not revoked, matching
// the admin workflow: gates are seeded or commissioned explicitly, never
// trusted on first contact.
func (s *GateStore) IsKnown(ctx context.Context, gateID string) (bool, error) {
	gateID = strings.TrimSpace(gateID)
	if gateID == "" {
		return false, nil
	}

	var enabled int
	var commissioned sql.NullInt64
	var revoked sql.NullInt64

	err := s.db.QueryRowContext(ctx, `
SELECT enabled, commissioned_at_ms, revoked_at_ms
FROM gates
WHERE gate_id = ?;
`, gateID).Scan(&enabled, &commissioned, &revoked)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("IsKnown query: %w", err)
	}

	return enabled == 1 && commissioned.Valid && !revoked.Valid, nil
}

// MarkSeen ensures the gate row exists (even for unknown gates, so their
// sightings are traceable) and updates last_seen.
func (s *GateStore) MarkSeen(ctx context.Context, gateID string, _ bool, t time.Time) error {
	gateID = strings.TrimSpace(gateID)
	if gateID == "" {
		return nil
	}
	if t.IsZero() {
		t = time.Now().UTC()
	}
	ms := t.UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureGate(ctx, tx, gateID, ms); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
UPDATE gates
SET last_seen_at_ms = ?,
    updated_at_ms   = ?
WHERE gate_id = ?;
`, ms, ms, gateID); err != nil {
			return fmt.Errorf("MarkSeen update gate: %w", err)
		}

		return nil
	})
}
