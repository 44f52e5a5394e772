package sample

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/itohio/pulsemeter/pkg/meter"
	"github.com/itohio/pulsemeter/pkg/pcnt"
)

type stubReader struct {
	mock.Mock
	cfg meter.Config
}

func (s *stubReader) Mode() meter.Mode {
	return s.Called().Get(0).(meter.Mode)
}

func (s *stubReader) Read(q meter.Quantity) (uint32, error) {
	args := s.Called(q)
	return args.Get(0).(uint32), args.Error(1)
}

func (s *stubReader) ReadRaw(q meter.Quantity) (uint32, error) {
	args := s.Called(q)
	return args.Get(0).(uint32), args.Error(1)
}

func (s *stubReader) Config() meter.Config { return s.cfg }

func newStubReader() *stubReader {
	return &stubReader{cfg: meter.Config{PowerRef: 100, VoltageRef: 10, CurrentRef: 5}}
}

// rawSequence queues one raw count per call for q.
func (s *stubReader) rawSequence(q meter.Quantity, counts ...uint32) {
	for _, n := range counts {
		s.On("ReadRaw", q).Return(n, nil).Once()
	}
}

func TestReading_GetSet(t *testing.T) {
	var r Reading

	for _, q := range meter.Quantities {
		_, ok := r.Get(q)
		assert.False(t, ok, q.String())
	}

	r.Set(meter.Voltage, 0)
	v, ok := r.Get(meter.Voltage)
	assert.True(t, ok, "zero is a valid reading")
	assert.Zero(t, v)

	r.Set(meter.Current, 42)
	v, ok = r.Get(meter.Current)
	assert.True(t, ok)
	assert.Equal(t, uint32(42), v)

	_, ok = r.Get(meter.Power)
	assert.False(t, ok)

	r.Set(meter.Quantity(7), 1)
	_, ok = r.Get(meter.Quantity(7))
	assert.False(t, ok)
	assert.Equal(t, uint8(0b110), r.Valid)
}

func TestPoll_MarksInactiveInvalid(t *testing.T) {
	r := newStubReader()
	r.On("Mode").Return(meter.SingleCurrent)
	r.rawSequence(meter.Current, 100, 130)

	var base baseline
	t0 := time.Now()
	_, ok, err := poll(r, &base, t0)
	require.NoError(t, err)
	assert.False(t, ok, "first poll only records the baseline")

	reading, ok, err := poll(r, &base, t0.Add(time.Second))
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, meter.SingleCurrent, reading.Mode)
	v, ok := reading.Get(meter.Current)
	assert.True(t, ok)
	assert.Equal(t, uint32(6), v)

	_, ok = reading.Get(meter.Voltage)
	assert.False(t, ok)
	_, ok = reading.Get(meter.Power)
	assert.False(t, ok)

	r.AssertNotCalled(t, "ReadRaw", meter.Voltage)
	r.AssertNotCalled(t, "ReadRaw", meter.Power)
}

func TestPoll_SteadyLoadGivesSteadyReading(t *testing.T) {
	r := newStubReader()
	r.On("Mode").Return(meter.DualChannel)
	r.rawSequence(meter.Power, 0, 1000, 2000, 3000, 4000)
	r.rawSequence(meter.Voltage, 0, 2300, 4600, 6900, 9200)
	r.rawSequence(meter.Current, 0, 50, 100, 150, 200)

	var base baseline
	t0 := time.Now()
	_, ok, err := poll(r, &base, t0)
	require.NoError(t, err)
	require.False(t, ok)

	for i := 1; i <= 4; i++ {
		reading, ok, err := poll(r, &base, t0.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.True(t, ok)

		for q, want := range map[meter.Quantity]uint32{meter.Power: 10, meter.Voltage: 230, meter.Current: 10} {
			v, _ := reading.Get(q)
			assert.Equal(t, want, v, "tick %d %s", i, q)
		}
	}
}

func TestPoll_ScalesToElapsedTime(t *testing.T) {
	r := newStubReader()
	r.On("Mode").Return(meter.SingleVoltage)
	r.rawSequence(meter.Voltage, 0, 115)

	var base baseline
	t0 := time.Now()
	_, _, err := poll(r, &base, t0)
	require.NoError(t, err)

	reading, ok, err := poll(r, &base, t0.Add(500*time.Millisecond))
	require.NoError(t, err)
	require.True(t, ok)
	v, _ := reading.Get(meter.Voltage)
	assert.Equal(t, uint32(23), v, "115 pulses in 0.5s is 230 Hz")
}

func TestPoll_RebaselinesOnModeChangeAndRestart(t *testing.T) {
	r := newStubReader()
	r.On("Mode").Return(meter.SingleCurrent).Twice()
	r.rawSequence(meter.Current, 0, 50)
	r.On("Mode").Return(meter.SingleVoltage)
	r.rawSequence(meter.Voltage, 900, 30, 260)

	var base baseline
	t0 := time.Now()
	at := func(s int) time.Time { return t0.Add(time.Duration(s) * time.Second) }

	_, ok, err := poll(r, &base, at(0))
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = poll(r, &base, at(1))
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = poll(r, &base, at(2))
	require.NoError(t, err)
	assert.False(t, ok, "mode change starts a new baseline")

	_, ok, err = poll(r, &base, at(3))
	require.NoError(t, err)
	assert.False(t, ok, "count went down: counter restarted")

	reading, ok, err := poll(r, &base, at(4))
	require.NoError(t, err)
	require.True(t, ok)
	v, _ := reading.Get(meter.Voltage)
	assert.Equal(t, uint32(23), v)
}

func TestPoll_Error(t *testing.T) {
	r := newStubReader()
	r.On("Mode").Return(meter.DualChannel)
	r.On("ReadRaw", meter.Power).Return(uint32(5), nil)
	r.On("ReadRaw", meter.Voltage).Return(uint32(0), errors.New("timeout"))

	base := baseline{valid: true, mode: meter.DualChannel}
	_, ok, err := poll(r, &base, time.Now())
	assert.Error(t, err)
	assert.False(t, ok)
	assert.False(t, base.valid, "failed snapshot drops the baseline")
	r.AssertNotCalled(t, "ReadRaw", meter.Current)
}

func TestPoller_SkipsFailedTicks(t *testing.T) {
	r := newStubReader()
	r.On("Mode").Return(meter.SingleVoltage)
	r.On("ReadRaw", meter.Voltage).Return(uint32(0), errors.New("timeout"))

	ctx, cancel := context.WithCancel(context.Background())
	out := NewPoller(r, 5*time.Millisecond, 10)(ctx)

	time.Sleep(50 * time.Millisecond)
	cancel()

	count := 0
	for range out {
		count++
	}
	assert.Zero(t, count)
	r.AssertCalled(t, "ReadRaw", meter.Voltage)
}

func TestPoller_SteadyLoadFollowsModeChange(t *testing.T) {
	dev := pcnt.NewMock(&pcnt.MockConfig{
		Signals: []pcnt.Signal{
			{Pin: 21, Hz: 1000},
			{Pin: 22, Hz: 2200},
			{Pin: 23, Hz: 300},
		},
	})
	require.NoError(t, dev.Connect())
	defer dev.Close()

	m, err := meter.New(meter.Config{
		PowerPin:       21,
		PowerChannel:   0,
		PowerRef:       100,
		VoltagePin:     22,
		VoltageChannel: 1,
		VoltageRef:     10,
		CurrentPin:     23,
		CurrentChannel: 2,
		CurrentRef:     5,
		SelectPin:      24,
		SelectLevel:    pcnt.High,
		Mode:           meter.DualChannel,
	}, dev, dev)
	require.NoError(t, err)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := NewPoller(m, 100*time.Millisecond, 10)(ctx)

	want := map[meter.Quantity]float64{meter.Power: 10, meter.Voltage: 220, meter.Current: 60}
	for i := 0; i < 3; i++ {
		r := next(t, out, func(r Reading) bool { return true })
		assert.Equal(t, meter.DualChannel, r.Mode)
		for q, w := range want {
			v, ok := r.Get(q)
			assert.True(t, ok, q.String())
			assert.InEpsilon(t, w, float64(v), 0.25, "tick %d %s", i, q)
		}
	}

	require.NoError(t, m.ChangeMode(meter.SingleCurrent))

	single := next(t, out, func(r Reading) bool { return r.Mode == meter.SingleCurrent })
	v, ok := single.Get(meter.Current)
	assert.True(t, ok)
	assert.InEpsilon(t, 60, float64(v), 0.25)
	_, ok = single.Get(meter.Voltage)
	assert.False(t, ok)
	_, ok = single.Get(meter.Power)
	assert.False(t, ok)

	cancel()
	for range out {
	}
}

func TestPoller_GracefulShutdown(t *testing.T) {
	r := newStubReader()
	r.On("Mode").Return(meter.SingleVoltage)
	r.On("ReadRaw", meter.Voltage).Return(uint32(230), nil)

	ctx, cancel := context.WithCancel(context.Background())
	out := NewPoller(r, 5*time.Millisecond, 10)(ctx)

	got := next(t, out, func(r Reading) bool { return true })
	v, ok := got.Get(meter.Voltage)
	assert.True(t, ok)
	assert.Zero(t, v, "count did not move")

	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range out {
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not close its output after cancel")
	}
}

// next returns the first reading from out that satisfies match.
func next(t *testing.T, out <-chan Reading, match func(Reading) bool) Reading {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case r, ok := <-out:
			require.True(t, ok, "output closed")
			if match(r) {
				return r
			}
		case <-timeout:
			t.Fatal("timeout waiting for reading")
		}
	}
}
