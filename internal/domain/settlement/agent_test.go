package settlement

import (
	"testing"

	"github.com/storefront/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAgent(t *testing.T) {
	t.Run("creates active agent with zero totals", func(t *testing.T) {
		a, err := NewAgent("  Samir Adel ", "0100 000 0000", 7)
		require.NoError(t, err)
		assert.Equal(t, "Samir Adel", a.Name)
		assert.Equal(t, "samir adel", a.NameKey)
		assert.True(t, a.Active)
		assert.True(t, a.TotalOwed.IsZero())
		assert.True(t, a.TotalPaid.IsZero())
		require.Len(t, a.PendingEvents(), 1)
		assert.Equal(t, EventTypeAgentCreated, a.PendingEvents()[0].EventType())
	})

	t.Run("rejects empty name and bad serial", func(t *testing.T) {
		_, err := NewAgent("   ", "", 1)
		assert.Equal(t, "INVALID_NAME", shared.CodeOf(err))
		_, err = NewAgent("Ola", "", 0)
		assert.Equal(t, "INVALID_SERIAL_NUMBER", shared.CodeOf(err))
	})
}

func TestNameKey(t *testing.T) {
	// composed and decomposed forms fold to the same key
	assert.Equal(t, NameKey("Jos\u00e9"), NameKey("Jose\u0301"))
	assert.Equal(t, NameKey("STRASSE"), NameKey("strasse"))
}

func TestAgent_ApplyBalance(t *testing.T) {
	a, err := NewAgent("Mona", "", 3)
	require.NoError(t, err)
	a.TakeEvents()

	b := Balance{
		NetRequired: dec("240"),
		Delivered:   dec("90"),
		Paid:        dec("30"),
	}
	a.ApplyBalance(b, "test")

	assert.True(t, a.TotalOwed.Equal(dec("240")))
	assert.True(t, a.TotalPaid.Equal(dec("120")))
	assert.True(t, a.Receivable().Equal(dec("120")))
	assert.Equal(t, 2, a.Version)
	require.Len(t, a.PendingEvents(), 1)
	assert.Equal(t, EventTypeAgentLedgerChanged, a.PendingEvents()[0].EventType())
}

func TestAgent_Deactivate(t *testing.T) {
	a, err := NewAgent("Mona", "", 3)
	require.NoError(t, err)
	require.NoError(t, a.EnsureActive())
	a.Deactivate()
	assert.False(t, a.Active)
	assert.Equal(t, "AGENT_INACTIVE", shared.CodeOf(a.EnsureActive()))
}
