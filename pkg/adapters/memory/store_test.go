package memory_test

import (
	"testing"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/adapters/memory"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/ports"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunUOWStoreContract(t, store)
}
