package ids

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
)

const (
	OrderCodePrefix     = "KS"
	InvoiceNumberPrefix = "INV-"
)

// codeEpoch keeps snowflake ids short enough to type into a bank transfer memo.
var codeEpoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

var epochOnce sync.Once

// Generator hands out order codes and invoice numbers.
type Generator struct {
	node *snowflake.Node
}

// NewGenerator returns a generator for the given snowflake node (0..1023).
func NewGenerator(nodeID int64) (*Generator, error) {
	epochOnce.Do(func() {
		snowflake.Epoch = codeEpoch.UnixMilli()
	})
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &Generator{node: node}, nil
}

// OrderCode returns "KS" followed by a decimal snowflake id.
func (g *Generator) OrderCode() string {
	return OrderCodePrefix + g.node.Generate().String()
}

// InvoiceNumber returns "INV-" followed by a ULID stamped at t.
func (g *Generator) InvoiceNumber(t time.Time) string {
	return InvoiceNumberPrefix + ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

// IsOrderCode reports whether s looks like a code produced by OrderCode.
func IsOrderCode(s string) bool {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !strings.HasPrefix(s, OrderCodePrefix) || len(s) == len(OrderCodePrefix) {
		return false
	}
	for _, r := range s[len(OrderCodePrefix):] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
