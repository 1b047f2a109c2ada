package types

type HeartbeatRequest struct {
	GateID          string `json:"gate_id"`
	FirmwareVersion string `json:"firmware_version,omitempty"`
	UptimeSeconds   uint64 `json:"uptime_s,omitempty"`
	Sequence        uint64 `json:"seq,omitempty"`
	ArmLowered      *bool  `json:"arm_lowered,omitempty"`
	RSSIDbm         *int   `json:"rssi_dbm,omitempty"`
	IP              string `json:"ip,omitempty"`
}

type HeartbeatResponse struct {
	OK         bool   `json:"ok"`
	Known      bool   `json:"known"`
	GateID     string `json:"gate_id"`
	ServerTime string `json:"server_time"`
}
