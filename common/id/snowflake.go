package id

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init initializes the Snowflake node with the given node ID.
// Must be called once at process start before any call to New.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New generates a new globally unique ID using the Snowflake algorithm.
// IDs are time-ordered and unique across distributed instances, which keeps
// review ids sortable by submission time.
func New() string {
	return node.Generate().String()
}
