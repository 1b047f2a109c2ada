package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/openlots/gatekeeper/internal/db"
	"github.com/openlots/gatekeeper/internal/gatekeeper/store"
)

type HeartbeatStore struct {
	db     *sql.DB
	writer *dbpkg.Writer
}

func NewHeartbeatStore(db *sql.DB, writer *dbpkg.Writer) *HeartbeatStore {
	return &HeartbeatStore{db: db, writer: writer}
}

func (s *HeartbeatStore) UpsertHeartbeat(ctx context.Context, gateID string, rec store.HeartbeatRecord) error {
	gateID = strings.TrimSpace(gateID)
	if gateID == "" {
		return nil
	}

	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	recvMs := rec.ReceivedAt.UTC().UnixMilli()

	fw := strings.TrimSpace(rec.Request.FirmwareVersion)
	ip := strings.TrimSpace(rec.Request.IP)

	var rssi any
	if rec.Request.RSSIDbm != nil {
		rssi = *rec.Request.RSSIDbm
	}

	var uptimeMs any
	if rec.Request.UptimeSeconds != 0 {
		uptimeMs = int64(rec.Request.UptimeSeconds) * 1000
	}

	var seq any
	if rec.Request.Sequence != 0 {
		seq = rec.Request.Sequence
	}

	var armLowered any
	if rec.Request.ArmLowered != nil {
		if *rec.Request.ArmLowered {
			armLowered = 1
		} else {
			armLowered = 0
		}
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureGate(ctx, tx, gateID, recvMs); err != nil {
			return err
		}

		// Append-only heartbeat history.
		if _, err := tx.ExecContext(ctx, `
INSERT INTO gate_heartbeats(
  gate_id, received_at_ms, seq, uptime_ms, fw_version, wifi_rssi, ip, arm_lowered
) VALUES (?, ?, ?, ?, ?, ?, ?, ?);
`, gateID, recvMs, seq, uptimeMs, fw, rssi, ip, armLowered); err != nil {
			return fmt.Errorf("UpsertHeartbeat insert heartbeat: %w", err)
		}

		// Snapshot on the gate row for fast current-status queries.
		if _, err := tx.ExecContext(ctx, `
UPDATE gates
SET last_seen_at_ms = ?,
    last_ip = ?,
    last_fw_version = ?,
    last_wifi_rssi = ?,
    updated_at_ms = ?
WHERE gate_id = ?;
`, recvMs, ip, fw, rssi, recvMs, gateID); err != nil {
			return fmt.Errorf("UpsertHeartbeat update gate snapshot: %w", err)
		}

		return nil
	})
}

// PruneOlderThan deletes heartbeat rows received before the cutoff.
// Returns the number of rows deleted.  Audit events are never pruned.
func (s *HeartbeatStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := cutoff.UTC().UnixMilli()

	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM gate_heartbeats
WHERE received_at_ms < ?;
`, cutoffMs)
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}
