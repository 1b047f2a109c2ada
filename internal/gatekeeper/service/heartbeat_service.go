package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openlots/gatekeeper/internal/gatekeeper/store"
	"github.com/openlots/gatekeeper/internal/gatekeeper/types"
)

var (
	ErrInvalidGateID = errors.New("gate_id is required")
)

type HeartbeatService struct {
	heartbeatStore store.HeartbeatStore
	registry       *GateRegistry
}

func NewHeartbeatService(hs store.HeartbeatStore, reg *GateRegistry) *HeartbeatService {
	return &HeartbeatService{heartbeatStore: hs, registry: reg}
}

func (s *HeartbeatService) Record(ctx context.Context, req types.HeartbeatRequest) (types.HeartbeatResponse, error) {
	gateID := strings.TrimSpace(req.GateID)
	if gateID == "" {
		return types.HeartbeatResponse{}, ErrInvalidGateID
	}

	known, err := s.registry.IsKnown(ctx, gateID)
	if err != nil {
		return types.HeartbeatResponse{}, err
	}
	_ = s.registry.NoteSeen(ctx, gateID, known)

	rec := store.HeartbeatRecord{
		ReceivedAt: time.Now().UTC(),
		Request:    req,
	}

	if err := s.heartbeatStore.UpsertHeartbeat(ctx, gateID, rec); err != nil {
		return types.HeartbeatResponse{}, err
	}

	return types.HeartbeatResponse{
		OK:         true,
		Known:      known,
		GateID:     gateID,
		ServerTime: time.Now().UTC().Format(time.RFC3339Nano),
	}, nil
}
