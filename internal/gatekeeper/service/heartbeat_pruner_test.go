package service_test

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/openlots/gatekeeper/internal/gatekeeper/service"
	"github.com/openlots/gatekeeper/internal/gatekeeper/store"
	"github.com/openlots/gatekeeper/internal/gatekeeper/store/memory"
	"github.com/openlots/gatekeeper/internal/gatekeeper/types"
)

func silentLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestHeartbeatPruner_DisabledWhenRetentionZero(t *testing.T) {
	hs := memory.NewHeartbeatStore()
	pruner := service.NewHeartbeatPruner(hs, service.PrunerConfig{
		RetentionDays: 0,
		IntervalHours: 1,
	}, silentLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pruner.Start(ctx)
	// Stop should return immediately.
	pruner.Stop()
}

func TestHeartbeatPruner_PrunesOldRecords(t *testing.T) {
	hs := memory.NewHeartbeatStore()
	ctx := context.Background()

	old := store.HeartbeatRecord{
		ReceivedAt: time.Now().UTC().AddDate(0, 0, -40),
		Request:    types.HeartbeatRequest{GateID: "gate-old"},
	}
	if err := hs.UpsertHeartbeat(ctx, "gate-old", old); err != nil {
		t.Fatalf("insert old: %v", err)
	}

	recent := store.HeartbeatRecord{
		ReceivedAt: time.Now().UTC().AddDate(0, 0, -1),
		Request:    types.HeartbeatRequest{GateID: "gate-recent"},
	}
	if err := hs.UpsertHeartbeat(ctx, "gate-recent", recent); err != nil {
		t.Fatalf("insert recent: %v", err)
	}

	// Prune directly via the store (the same operation the pruner calls).
	cutoff := time.Now().UTC().AddDate(0, 0, -30)
	deleted, err := hs.PruneOlderThan(ctx, cutoff)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", deleted)
	}

	if _, ok := hs.Latest("gate-old"); ok {
		t.Error("expected gate-old heartbeat to be pruned")
	}
	if _, ok := hs.Latest("gate-recent"); !ok {
		t.Error("expected gate-recent heartbeat to survive")
	}
}

func TestHeartbeatService_RecordsAndReportsKnown(t *testing.T) {
	hs := memory.NewHeartbeatStore()
	registry := service.NewGateRegistry(memory.NewGateStore([]string{"gate-a"}))
	svc := service.NewHeartbeatService(hs, registry)

	resp, err := svc.Record(context.Background(), types.HeartbeatRequest{
		GateID:        "gate-a",
		UptimeSeconds: 42,
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !resp.OK || !resp.Known {
		t.Errorf("expected ok+known, got %+v", resp)
	}

	rec, ok := hs.Latest("gate-a")
	if !ok {
		t.Fatal("expected a stored heartbeat")
	}
	if rec.Request.UptimeSeconds != 42 {
		t.Errorf("expected uptime 42, got %d", rec.Request.UptimeSeconds)
	}
}

func TestHeartbeatService_UnknownGateStillAccepted(t *testing.T) {
	hs := memory.NewHeartbeatStore()
	registry := service.NewGateRegistry(memory.NewGateStore([]string{"gate-a"}))
	svc := service.NewHeartbeatService(hs, registry)

	resp, err := svc.Record(context.Background(), types.HeartbeatRequest{GateID: "gate-x"})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if resp.Known {
		t.Error("expected known=false for an uncommissioned gate")
	}
}

func TestHeartbeatService_MissingGateID(t *testing.T) {
	svc := service.NewHeartbeatService(memory.NewHeartbeatStore(), service.NewGateRegistry(memory.NewGateStore(nil)))

	if _, err := svc.Record(context.Background(), types.HeartbeatRequest{}); err != service.ErrInvalidGateID {
		t.Fatalf("expected ErrInvalidGateID, got %v", err)
	}
}
