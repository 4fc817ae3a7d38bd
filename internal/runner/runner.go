// Package runner paces a machine against wall-clock time. Instructions and
// timer ticks run on two independent clocks, so a faster instruction rate
// never speeds up the timers.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kapitanov/chip8vm/v2/internal/vm"
)

const (
	DefaultInstructionsPerSecond = 700
	DefaultTimerHz               = 60
)

var ErrTooManyErrors = errors.New("too many consecutive instruction errors")

// Machine is the part of *vm.VM the runner drives.
type Machine interface {
	Step(keys vm.Keypad) error
	Tick()
	Redraw() bool
	Display() vm.Display
	Halted() bool
}

type HAL interface {
	ReadInput(keyDown func(vm.Key), keyUp func(vm.Key)) error
	Draw(d vm.Display) error
	WaitForNextFrame() error
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type Config struct {
	InstructionsPerSecond int
	TimerHz               int

	// MaxErrors stops the run after that many failing instructions in a row.
	// Zero never stops.
	MaxErrors int

	// Clock defaults to the system clock.
	Clock Clock
}

func (c Config) withDefaults() Config {
	if c.InstructionsPerSecond <= 0 {
		c.InstructionsPerSecond = DefaultInstructionsPerSecond
	}
	if c.TimerHz <= 0 {
		c.TimerHz = DefaultTimerHz
	}
	if c.Clock == nil {
		c.Clock = systemClock{}
	}
	return c
}

type runner struct {
	cfg     Config
	machine Machine
	hal     HAL

	keys vm.KeyState

	executed int64
	ticked   int64

	consecutiveErrors int
	loopReported      bool
}

// Run drives machine until ctx is done or the HAL or error policy stops it.
func Run(ctx context.Context, machine Machine, hal HAL, cfg Config) error {
	r := &runner{
		cfg:     cfg.withDefaults(),
		machine: machine,
		hal:     hal,
	}

	slog.Debug("runner: start",
		"hz", r.cfg.InstructionsPerSecond,
		"timer_hz", r.cfg.TimerHz,
		"max_errors", r.cfg.MaxErrors,
	)

	start := r.cfg.Clock.Now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := r.runFrame(r.cfg.Clock.Now().Sub(start)); err != nil {
			return err
		}
	}
}

func (r *runner) runFrame(elapsed time.Duration) error {
	if err := r.catchUp(elapsed); err != nil {
		return err
	}

	if r.machine.Redraw() {
		if err := r.hal.Draw(r.machine.Display()); err != nil {
			return err
		}
	}

	if err := r.hal.ReadInput(r.keys.Press, r.keys.Release); err != nil {
		return err
	}

	return r.hal.WaitForNextFrame()
}

// catchUp runs every instruction and timer tick due by elapsed, in time order.
func (r *runner) catchUp(elapsed time.Duration) error {
	for {
		nextStep := dueAt(r.executed+1, r.cfg.InstructionsPerSecond)
		nextTick := dueAt(r.ticked+1, r.cfg.TimerHz)

		stepDue := nextStep <= elapsed
		tickDue := nextTick <= elapsed

		switch {
		case tickDue && (!stepDue || nextTick <= nextStep):
			r.machine.Tick()
			r.ticked++

		case stepDue:
			r.executed++
			if err := r.step(); err != nil {
				return err
			}

		default:
			return nil
		}
	}
}

func (r *runner) step() error {
	err := r.machine.Step(&r.keys)

	if r.machine.Halted() && !r.loopReported {
		r.loopReported = true
		slog.Info("program looped")
	}

	if err == nil {
		r.consecutiveErrors = 0
		return nil
	}

	r.consecutiveErrors++
	slog.Warn("instruction failed", "err", err, "in_a_row", r.consecutiveErrors)

	if r.cfg.MaxErrors > 0 && r.consecutiveErrors >= r.cfg.MaxErrors {
		return fmt.Errorf("%w: %w", ErrTooManyErrors, err)
	}
	return nil
}

// dueAt is the offset from start at which the n-th event of a rate-hz clock fires.
func dueAt(n int64, hz int) time.Duration {
	return time.Duration(n) * time.Second / time.Duration(hz)
}
