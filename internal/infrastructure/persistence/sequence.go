package persistence

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// Sequencer hands out strictly increasing int64 values for one process
type Sequencer interface {
	Next() int64
}

// SnowflakeSequencer generates time-ordered ids. Each process writing to the
// same database must use a distinct node id.
type SnowflakeSequencer struct {
	node *snowflake.Node
}

// NewSnowflakeSequencer creates a sequencer for the given node (0-1023)
func NewSnowflakeSequencer(nodeID int64) (*SnowflakeSequencer, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node %d: %w", nodeID, err)
	}
	return &SnowflakeSequencer{node: node}, nil
}

// Next returns the next id
func (s *SnowflakeSequencer) Next() int64 {
	return s.node.Generate().Int64()
}
