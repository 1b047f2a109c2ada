package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/openlots/gatekeeper/internal/db"
	"github.com/openlots/gatekeeper/internal/gatekeeper/store"
	"github.com/openlots/gatekeeper/internal/gatekeeper/types"
)

type GateEventStore struct {
	db     *sql.DB
	writer *dbpkg.Writer
}

func NewGateEventStore(db *sql.DB, writer *dbpkg.Writer) *GateEventStore {
	return &GateEventStore{db: db, writer: writer}
}

func (s *GateEventStore) Append(ctx context.Context, rec store.GateEventRecord) (string, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	createdMs := rec.CreatedAt.UTC().UnixMilli()

	var ticketCode any
	if rec.TicketCode != "" {
		ticketCode = rec.TicketCode
	}
	var operatorID any
	if rec.OperatorID != "" {
		operatorID = rec.OperatorID
	}

	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureGate(ctx, tx, rec.GateID, createdMs); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO gate_events(
  event_id, gate_id, event_type, license_plate, ticket_code,
  decision, reason, operator_id, created_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			rec.ID, rec.GateID, string(rec.EventType), rec.LicensePlate, ticketCode,
			string(rec.Decision), rec.Reason, operatorID, createdMs,
		); err != nil {
			return fmt.Errorf("Append insert: %w", err)
		}

		return nil
	})
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (s *GateEventStore) Recent(ctx context.Context, limit int) ([]store.GateEventRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT event_id, gate_id, event_type, license_plate, ticket_code,
       decision, reason, operator_id, created_at_ms
FROM gate_events
ORDER BY created_at_ms DESC, event_id DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("Recent query: %w", err)
	}
	defer rows.Close()

	var out []store.GateEventRecord
	for rows.Next() {
		var (
			rec        store.GateEventRecord
			eventType  string
			decision   string
			ticketCode sql.NullString
			operatorID sql.NullString
			createdMs  int64
		)
		if err := rows.Scan(
			&rec.ID, &rec.GateID, &eventType, &rec.LicensePlate, &ticketCode,
			&decision, &rec.Reason, &operatorID, &createdMs,
		); err != nil {
			return nil, fmt.Errorf("Recent scan: %w", err)
		}
		rec.EventType = types.EventType(eventType)
		rec.Decision = types.Action(decision)
		rec.TicketCode = ticketCode.String
		rec.OperatorID = operatorID.String
		rec.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Recent rows: %w", err)
	}
	return out, nil
}
