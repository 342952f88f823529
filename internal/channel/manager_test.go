package channel

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManagerStartsInStandby(t *testing.T) {
	m := NewManager()

	list := m.List()
	require.Len(t, list.Items, 4)
	for i, ch := range list.Items {
		assert.Equal(t, All[i], ch.ID)
		assert.Equal(t, Standby, ch.State)
	}
}

func TestSetState(t *testing.T) {
	m := NewManager()

	prev, err := m.SetState(Tx1, Primed)
	require.NoError(t, err)
	assert.Equal(t, Standby, prev)

	prev, err = m.SetState(Tx1, RFEnabled)
	require.NoError(t, err)
	assert.Equal(t, Primed, prev)

	st, err := m.ChannelState(context.Background(), Tx1)
	require.NoError(t, err)
	assert.Equal(t, RFEnabled, st)

	_, err = m.SetState(ID(9), Primed)
	assert.ErrorIs(t, err, ErrUnknownChannel)

	_, err = m.SetState(Rx1, State(42))
	assert.Error(t, err)
}

func TestChannelStateHonoursContext(t *testing.T) {
	m := NewManager()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.ChannelState(ctx, Rx1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParse(t *testing.T) {
	id, err := ParseID("RX2")
	require.NoError(t, err)
	assert.Equal(t, Rx2, id)

	_, err = ParseID("rx3")
	assert.ErrorIs(t, err, ErrUnknownChannel)

	st, err := ParseState("rf_enabled")
	require.NoError(t, err)
	assert.Equal(t, RFEnabled, st)

	assert.Equal(t, uint8(0x04), Tx1.Bit())
	assert.Equal(t, uint8(0), ID(0).Bit())
}

func TestChannelJSON(t *testing.T) {
	m := NewManager()
	_, err := m.SetState(Rx1, Calibrated)
	require.NoError(t, err)

	ch, err := m.Get(Rx1)
	require.NoError(t, err)

	b, err := json.Marshal(ch)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"id":"rx1"`)
	assert.Contains(t, string(b), `"state":"CALIBRATED"`)

	var back Channel
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, Rx1, back.ID)
	assert.Equal(t, Calibrated, back.State)
}
