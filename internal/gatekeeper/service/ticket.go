package service

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// TicketIssuer mints visitor ticket codes.  The snowflake payload is a
// millisecond timestamp plus node and sequence bits, so codes minted by
// concurrent entry decisions on one node can never collide, and codes sort
// by issue time.
type TicketIssuer struct {
	node *snowflake.Node
}

// NewTicketIssuer creates an issuer for the given node identifier (0–1023).
// Each running server instance must use a distinct node ID.
func NewTicketIssuer(nodeID int64) (*TicketIssuer, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("ticket issuer: %w", err)
	}
	return &TicketIssuer{node: node}, nil
}

// Issue returns a new ticket code of the form <GATE>-<snowflake base36>.
func (t *TicketIssuer) Issue(gateID string) string {
	id := t.node.Generate()
	return fmt.Sprintf("%s-%s",
		strings.ToUpper(strings.TrimSpace(gateID)),
		strings.ToUpper(id.Base36()),
	)
}
