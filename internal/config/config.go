package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string

	// DB
	Env    string // "dev" | "prod"
	DBPath string // e.g. "./data/gatekeeper.db"

	// Facility
	LotID      string
	KnownGates []string

	// Ticket generation: snowflake node, unique per server instance.
	NodeID int64

	// Downstream authorities
	SubscriptionURL string
	PaymentURL      string
	SpaceURL        string
	EventLogURL     string

	// AuthorityTimeout bounds one downstream attempt; DecisionDeadline
	// bounds a whole gate event.
	AuthorityTimeout time.Duration
	DecisionDeadline time.Duration

	// Heartbeat retention
	HeartbeatRetentionDays int // 0 = keep forever
	PruneIntervalHours     int // how often the pruner runs (default 6)
}

func FromEnv() Config {
	// A missing .env is fine; real deployments set the environment
	// directly.
	_ = godotenv.Load()

	addr := getenvDefault("GATEKEEPER_HTTP_ADDR", ":8080")

	env := strings.ToLower(getenvDefault("GATEKEEPER_ENV", "dev"))
	if env != "dev" && env != "prod" {
		// fail-soft: treat unknown as dev
		env = "dev"
	}

	dbPath := getenvDefault("GATEKEEPER_DB_PATH", "./data/gatekeeper.db")

	lotID := getenvDefault("GATEKEEPER_LOT_ID", "lot_main")
	knownGates := splitCSV(os.Getenv("GATEKEEPER_KNOWN_GATES"))

	nodeID := int64(getenvInt("GATEKEEPER_NODE_ID", 1))

	return Config{
		HTTPAddr: addr,
		Env:      env,
		DBPath:   dbPath,

		LotID:      lotID,
		KnownGates: knownGates,
		NodeID:     nodeID,

		SubscriptionURL: getenvDefault("GATEKEEPER_SUBSCRIPTION_URL", "http://localhost:8101"),
		PaymentURL:      getenvDefault("GATEKEEPER_PAYMENT_URL", "http://localhost:8102"),
		SpaceURL:        getenvDefault("GATEKEEPER_SPACE_URL", "http://localhost:8103"),
		EventLogURL:     os.Getenv("GATEKEEPER_EVENTLOG_URL"),

		AuthorityTimeout: time.Duration(getenvInt("GATEKEEPER_AUTHORITY_TIMEOUT_MS", 2000)) * time.Millisecond,
		DecisionDeadline: time.Duration(getenvInt("GATEKEEPER_DECISION_DEADLINE_MS", 5000)) * time.Millisecond,

		HeartbeatRetentionDays: getenvInt("GATEKEEPER_HEARTBEAT_RETENTION_DAYS", 30),
		PruneIntervalHours:     getenvInt("GATEKEEPER_PRUNE_INTERVAL_HOURS", 6),
	}
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
