package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/openlots/gatekeeper/internal/gatekeeper/store"
	"github.com/openlots/gatekeeper/internal/gatekeeper/store/sqlite"
	"github.com/openlots/gatekeeper/internal/gatekeeper/types"
)

func TestHeartbeatStore_InsertsHistoryAndSnapshot(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	hs := sqlite.NewHeartbeatStore(conn, w)
	ctx := context.Background()

	rssi := -61
	rec := store.HeartbeatRecord{
		ReceivedAt: time.Now().UTC(),
		Request: types.HeartbeatRequest{
			GateID:          "gate-a",
			FirmwareVersion: "1.4.2",
			UptimeSeconds:   3600,
			Sequence:        12,
			RSSIDbm:         &rssi,
			IP:              "10.0.0.5",
		},
	}

	if err := hs.UpsertHeartbeat(ctx, "gate-a", rec); err != nil {
		t.Fatalf("UpsertHeartbeat: %v", err)
	}

	var count int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM gate_heartbeats WHERE gate_id = 'gate-a';`).Scan(&count); err != nil {
		t.Fatalf("count heartbeats: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 heartbeat row, got %d", count)
	}

	var fw, ip string
	if err := conn.QueryRow(`SELECT last_fw_version, last_ip FROM gates WHERE gate_id = 'gate-a';`).Scan(&fw, &ip); err != nil {
		t.Fatalf("query snapshot: %v", err)
	}
	if fw != "1.4.2" || ip != "10.0.0.5" {
		t.Errorf("snapshot fw=%q ip=%q", fw, ip)
	}
}

func TestHeartbeatStore_PruneOlderThan(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	hs := sqlite.NewHeartbeatStore(conn, w)
	ctx := context.Background()

	old := store.HeartbeatRecord{
		ReceivedAt: time.Now().UTC().AddDate(0, 0, -40),
		Request:    types.HeartbeatRequest{GateID: "gate-a"},
	}
	recent := store.HeartbeatRecord{
		ReceivedAt: time.Now().UTC(),
		Request:    types.HeartbeatRequest{GateID: "gate-a"},
	}
	if err := hs.UpsertHeartbeat(ctx, "gate-a", old); err != nil {
		t.Fatalf("insert old: %v", err)
	}
	if err := hs.UpsertHeartbeat(ctx, "gate-a", recent); err != nil {
		t.Fatalf("insert recent: %v", err)
	}

	deleted, err := hs.PruneOlderThan(ctx, time.Now().UTC().AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("PruneOlderThan: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}

	var count int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM gate_heartbeats;`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 surviving row, got %d", count)
	}
}
