package pcnt

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMock_ConfigureCountReset(t *testing.T) {
	m := NewMock(nil)

	require.NoError(t, m.Configure(1, 12))
	m.Pulse(12, 5)
	m.Pulse(13, 7) // nothing bound

	n, err := m.Count(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), n)

	require.NoError(t, m.Reset(1))
	n, err = m.Count(1)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMock_ConfigureRestartsFromZero(t *testing.T) {
	m := NewMock(nil)

	require.NoError(t, m.Configure(0, 4))
	m.Pulse(4, 10)
	require.NoError(t, m.Configure(0, 5))

	n, err := m.Count(0)
	require.NoError(t, err)
	assert.Zero(t, n)

	pin, running, ok := m.Bound(0)
	assert.True(t, ok)
	assert.True(t, running)
	assert.Equal(t, Pin(5), pin)
}

func TestMock_PauseKeepsCount(t *testing.T) {
	m := NewMock(nil)

	require.NoError(t, m.Configure(2, 3))
	m.Pulse(3, 4)
	require.NoError(t, m.Pause(2))
	m.Pulse(3, 100)

	n, err := m.Count(2)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), n)
	assert.Empty(t, m.Running())
}

func TestMock_UnknownChannel(t *testing.T) {
	m := NewMock(nil)

	_, err := m.Count(9)
	assert.ErrorIs(t, err, ErrUnknownChannel)
	assert.ErrorIs(t, m.Reset(9), ErrUnknownChannel)
	assert.ErrorIs(t, m.Pause(9), ErrUnknownChannel)
}

func TestMock_SetLevel(t *testing.T) {
	m := NewMock(nil)

	_, ok := m.Level(7)
	assert.False(t, ok)

	require.NoError(t, m.SetLevel(7, High))
	lvl, ok := m.Level(7)
	assert.True(t, ok)
	assert.Equal(t, High, lvl)
}

func TestMock_FailOn(t *testing.T) {
	m := NewMock(nil)
	boom := errors.New("boom")

	m.FailOn(OpConfigure, 1, boom)
	assert.ErrorIs(t, m.Configure(1, 2), boom)
	assert.NoError(t, m.Configure(3, 2), "other channels are unaffected")

	m.FailOn(OpSetLevel, 8, boom)
	assert.ErrorIs(t, m.SetLevel(8, High), boom)

	m.FailOn(OpConfigure, 1, nil)
	assert.NoError(t, m.Configure(1, 2))
}

func TestMock_Running(t *testing.T) {
	m := NewMock(nil)
	require.NoError(t, m.Configure(3, 1))
	require.NoError(t, m.Configure(1, 2))
	require.NoError(t, m.Configure(2, 3))
	require.NoError(t, m.Pause(2))

	assert.Equal(t, []Channel{1, 3}, m.Running())
}

func TestMock_StepGeneratesPulses(t *testing.T) {
	m := NewMock(&MockConfig{
		Signals: []Signal{
			{Pin: 1, Hz: 1000},
			{Pin: 2, Hz: 150},
		},
	})
	require.NoError(t, m.Configure(0, 1))
	require.NoError(t, m.Configure(1, 2))

	for range 10 {
		m.step(10 * time.Millisecond)
	}

	n, err := m.Count(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(100), n)

	// 1.5 pulses per tick; the fraction is carried over
	n, err = m.Count(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(15), n)
}

func TestMock_GatedSignal(t *testing.T) {
	m := NewMock(&MockConfig{
		Signals: []Signal{
			{Pin: 5, Hz: 100, Gated: true, Gate: 9, GateLevel: High},
			{Pin: 5, Hz: 10, Gated: true, Gate: 9, GateLevel: Low},
		},
	})
	require.NoError(t, m.Configure(0, 5))

	require.NoError(t, m.SetLevel(9, High))
	m.step(time.Second)
	n, _ := m.Count(0)
	assert.Equal(t, uint32(100), n)

	require.NoError(t, m.SetLevel(9, Low))
	m.step(time.Second)
	n, _ = m.Count(0)
	assert.Equal(t, uint32(110), n)
}

func TestMock_ConnectClose(t *testing.T) {
	m := NewMock(&MockConfig{
		Signals: []Signal{{Pin: 1, Hz: 10000}},
		Tick:    time.Millisecond,
	})
	require.NoError(t, m.Configure(0, 1))

	require.NoError(t, m.Connect())
	assert.True(t, m.IsConnected())
	assert.Error(t, m.Connect())

	assert.Eventually(t, func() bool {
		n, _ := m.Count(0)
		return n > 0
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, m.Close())
	assert.False(t, m.IsConnected())
	assert.NoError(t, m.Close())

	// generator stopped
	before, _ := m.Count(0)
	time.Sleep(20 * time.Millisecond)
	after, _ := m.Count(0)
	assert.Equal(t, before, after)
}
