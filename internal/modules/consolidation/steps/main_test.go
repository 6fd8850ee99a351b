package steps

import (
	"os"
	"testing"

	"github.com/fredpottier/kbgraph/internal/modules/consolidation/prompts"
)

// Cluster labeling resolves its prompt through the registry, so the package
// suite needs the same registration main() performs.
func TestMain(m *testing.M) {
	prompts.RegisterAll()
	os.Exit(m.Run())
}
