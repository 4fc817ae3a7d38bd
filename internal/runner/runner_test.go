package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kapitanov/chip8vm/v2/internal/vm"
)

var errStop = errors.New("stop")

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

// fakeHAL advances the clock by one frame per wait and stops at the deadline.
type fakeHAL struct {
	clock    *fakeClock
	start    time.Time
	frame    time.Duration
	deadline time.Duration

	press  []vm.Key
	frames int
	draws  []vm.Display
}

func newFakeHAL(frame, deadline time.Duration) *fakeHAL {
	c := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	return &fakeHAL{clock: c, start: c.now, frame: frame, deadline: deadline}
}

func (h *fakeHAL) ReadInput(keyDown func(vm.Key), _ func(vm.Key)) error {
	for _, k := range h.press {
		keyDown(k)
	}
	return nil
}

func (h *fakeHAL) Draw(d vm.Display) error {
	h.draws = append(h.draws, d)
	return nil
}

func (h *fakeHAL) WaitForNextFrame() error {
	h.frames++
	h.clock.now = h.clock.now.Add(h.frame)
	if h.clock.now.Sub(h.start) >= h.deadline {
		return errStop
	}
	return nil
}

type fakeMachine struct {
	steps, ticks int
	stepErr      error
	halted       bool
	redraw       bool
	lastKeys     vm.Keypad
}

func (m *fakeMachine) Step(keys vm.Keypad) error {
	m.steps++
	m.lastKeys = keys
	return m.stepErr
}

func (m *fakeMachine) Tick()               { m.ticks++ }
func (m *fakeMachine) Display() vm.Display { return vm.Display{} }
func (m *fakeMachine) Halted() bool        { return m.halted }

func (m *fakeMachine) Redraw() bool {
	r := m.redraw
	m.redraw = false
	return r
}

func TestRunClocksAreDecoupled(t *testing.T) {
	tests := []struct {
		name      string
		hz        int
		wantSteps int
	}{
		{"default rate", 0, 630},
		{"double rate", 1400, 1260},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hal := newFakeHAL(100*time.Millisecond, time.Second)
			m := &fakeMachine{}

			err := Run(context.Background(), m, hal, Config{InstructionsPerSecond: tt.hz, Clock: hal.clock})
			require.ErrorIs(t, err, errStop)

			assert.Equal(t, 10, hal.frames)
			assert.Equal(t, tt.wantSteps, m.steps)
			assert.Equal(t, 54, m.ticks)
		})
	}
}

func TestRunForwardsKeys(t *testing.T) {
	hal := newFakeHAL(100*time.Millisecond, 200*time.Millisecond)
	hal.press = []vm.Key{vm.KeyA}
	m := &fakeMachine{}

	err := Run(context.Background(), m, hal, Config{Clock: hal.clock})
	require.ErrorIs(t, err, errStop)

	require.NotNil(t, m.lastKeys)
	assert.True(t, m.lastKeys.Pressed(vm.KeyA))
	assert.False(t, m.lastKeys.Pressed(vm.KeyB))
}

func TestRunDrawsOnRedraw(t *testing.T) {
	hal := newFakeHAL(100*time.Millisecond, 300*time.Millisecond)
	m := &fakeMachine{redraw: true}

	err := Run(context.Background(), m, hal, Config{Clock: hal.clock})
	require.ErrorIs(t, err, errStop)

	assert.Len(t, hal.draws, 1)
}

func TestRunMaxErrors(t *testing.T) {
	hal := newFakeHAL(100*time.Millisecond, time.Hour)
	m := &fakeMachine{stepErr: vm.ErrStackUnderflow}

	err := Run(context.Background(), m, hal, Config{MaxErrors: 5, Clock: hal.clock})
	require.ErrorIs(t, err, ErrTooManyErrors)
	assert.ErrorIs(t, err, vm.ErrStackUnderflow)
	assert.Equal(t, 5, m.steps)
}

func TestRunKeepsGoingOnErrorsByDefault(t *testing.T) {
	hal := newFakeHAL(100*time.Millisecond, time.Second)
	m := &fakeMachine{stepErr: vm.ErrUnmatchedOpcode, halted: true}

	err := Run(context.Background(), m, hal, Config{Clock: hal.clock})
	require.ErrorIs(t, err, errStop)
	assert.Equal(t, 630, m.steps)
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	hal := newFakeHAL(100*time.Millisecond, time.Second)
	m := &fakeMachine{}

	err := Run(ctx, m, hal, Config{Clock: hal.clock})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, m.steps)
}

func TestRunWithRealMachine(t *testing.T) {
	machine, err := vm.New([]byte{
		0x60, 0x05, // mov v0, 5
		0xF0, 0x29, // font v0
		0xD1, 0x15, // sprite v1, v1, 5
		0x12, 0x06, // jmp 0x206
	}, vm.Config{})
	require.NoError(t, err)

	hal := newFakeHAL(50*time.Millisecond, 200*time.Millisecond)
	err = Run(context.Background(), machine, hal, Config{Clock: hal.clock})
	require.ErrorIs(t, err, errStop)

	assert.True(t, machine.Halted())
	require.NotEmpty(t, hal.draws)
	assert.True(t, hal.draws[len(hal.draws)-1].Pixel(0, 0))
}
