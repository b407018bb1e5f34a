package gen

import (
	"hash/fnv"
	"os"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var Module = fx.Module("snowflake",
	fx.Provide(NewNode),
)

// NewNode builds the process-wide snowflake node. The node id is derived from
// the hostname so replicas of a stateless deployment don't mint colliding ids.
func NewNode() (*snowflake.Node, error) {
	host, err := os.Hostname()
	if err != nil {
		host = "seedloop"
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(host))
	nodeID := int64(h.Sum32() % 1024)

	return snowflake.NewNode(nodeID)
}
