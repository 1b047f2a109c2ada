package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type SeedDevOptions struct {
	LotID string
	// Gates to pre-commission in dev so local lane simulators work out of
	// the box.
	KnownGates []string
}

func SeedDev(ctx context.Context, db *sql.DB, opt SeedDevOptions) error {
	now := time.Now().UTC().UnixMilli()

	lotID := strings.TrimSpace(opt.LotID)
	if lotID == "" {
		lotID = "lot_main"
	}

	if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO lots(lot_id, name, created_at_ms, updated_at_ms)
VALUES (?, 'Main Lot', ?, ?);`, lotID, now, now); err != nil {
		return fmt.Errorf("seed lots: %w", err)
	}

	gates := opt.KnownGates
	if len(gates) == 0 {
		gates = []string{"gate-a", "gate-b"}
	}

	for _, gateID := range gates {
		gateID = strings.TrimSpace(gateID)
		if gateID == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, `
INSERT INTO gates(
  gate_id, lot_id, display_name,
  enabled, commissioned_at_ms,
  created_at_ms, updated_at_ms
) VALUES (?, ?, ?, 1, ?, ?, ?)
ON CONFLICT(gate_id) DO UPDATE SET
  lot_id = excluded.lot_id,
  enabled = 1,
  commissioned_at_ms = COALESCE(gates.commissioned_at_ms, excluded.commissioned_at_ms),
  updated_at_ms = excluded.updated_at_ms;`,
			gateID, lotID, gateID, now, now, now); err != nil {
			return fmt.Errorf("seed gate %s: %w", gateID, err)
		}
	}

	return nil
}
