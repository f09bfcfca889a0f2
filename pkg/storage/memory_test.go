package storage

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMemoryEngine(t *testing.T) {
	engine := NewMemoryEngine()
	require.NotNil(t, engine)
	assert.NotNil(t, engine.nodes)
	assert.NotNil(t, engine.edges)
	assert.NotNil(t, engine.nodesByLabel)
	assert.NotNil(t, engine.outgoingEdges)
	assert.NotNil(t, engine.incomingEdges)
	assert.False(t, engine.closed)
}

func TestMemoryEngine_UpdateNodeReindexesLabels(t *testing.T) {
	engine := NewMemoryEngine()
	require.NoError(t, engine.CreateNode(cityNode("a", "Paris")))

	n, err := engine.GetNode("a")
	require.NoError(t, err)
	n.Labels = []string{"Capital"}
	require.NoError(t, engine.UpdateNode(n))

	assert.Empty(t, engine.nodesByLabel["City"])
	assert.Contains(t, engine.nodesByLabel["Capital"], NodeID("a"))
}

func TestMemoryEngine_ConcurrentAccess(t *testing.T) {
	engine := NewMemoryEngine()
	require.NoError(t, engine.AddUniqueConstraint("city_unique", "City", "name"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("n%d", i)
			assert.NoError(t, engine.CreateNode(cityNode(id, "City "+id)))
			_, err := engine.GetNodesByLabel("City")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	count, err := engine.NodeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(20), count)
}
