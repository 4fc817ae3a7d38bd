package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/faiface/mainthread"
	"github.com/kapitanov/chip8vm/v2/internal/hal"
	"github.com/kapitanov/chip8vm/v2/internal/runner"
	"github.com/kapitanov/chip8vm/v2/internal/vm"
	"github.com/spf13/cobra"
)

type options struct {
	verbose bool

	quirks vm.Quirks

	hz        int
	timerHz   int
	maxErrors int
	seed      uint64
}

type runFunc func(ctx context.Context, path string, opts options) error

func newCommand(runE runFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:           fmt.Sprintf("%s PATH_TO_ROM_FILE", filepath.Base(os.Args[0])),
		Short:         "Run emulator",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	var opts options
	flags := cmd.Flags()
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose logging")
	flags.BoolVar(&opts.quirks.ShiftIgnoresVY, "shift", false, "8XY6 and 8XYE ignore their second operand")
	flags.BoolVar(&opts.quirks.JumpUsesVX, "jump", false, "BNNN uses VX rather than V0 for the jump table index")
	flags.BoolVar(&opts.quirks.NoIndexIncrement, "no-increment", false, "FX55 and FX65 leave I unchanged")
	flags.IntVar(&opts.hz, "hz", runner.DefaultInstructionsPerSecond, "instructions per second")
	flags.IntVar(&opts.timerHz, "timer-hz", runner.DefaultTimerHz, "timer decrements per second")
	flags.IntVar(&opts.maxErrors, "max-errors", 0, "stop after this many failing instructions in a row (0 never stops)")
	flags.Uint64Var(&opts.seed, "seed", 0, "seed for the random instruction (0 picks one)")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		setupLogger(opts.verbose)
		return runE(cmd.Context(), args[0], opts)
	}

	return cmd
}

func setupLogger(verbose bool) {
	loggerOpts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if verbose {
		loggerOpts.Level = slog.LevelDebug
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, loggerOpts)))
}

func run(ctx context.Context, path string, opts options) error {
	bs, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("unable to load file %q: %w", path, err)
	}

	cfg := vm.Config{Quirks: opts.quirks}
	if opts.seed != 0 {
		cfg.Rand = rand.New(rand.NewPCG(opts.seed, opts.seed))
	}

	machine, err := vm.New(bs, cfg)
	if err != nil {
		return fmt.Errorf("unable to load program %q: %w", path, err)
	}
	slog.Info("quirks", "enabled", opts.quirks.String())

	h, err := hal.New("CHIP-8 - " + filepath.Base(path))
	if err != nil {
		return fmt.Errorf("unable to initialize hal: %w", err)
	}
	defer h.Shutdown()

	runCfg := runner.Config{
		InstructionsPerSecond: opts.hz,
		TimerHz:               opts.timerHz,
		MaxErrors:             opts.maxErrors,
	}

	for {
		err = runner.Run(ctx, machine, h, runCfg)

		switch {
		case errors.Is(err, hal.ErrReboot):
			slog.Info("reboot")
			machine.Reset()
			continue

		case errors.Is(err, hal.ErrQuit), errors.Is(err, context.Canceled):
			logStats(machine)
			return nil

		case errors.Is(err, runner.ErrTooManyErrors):
			logStats(machine)
			slog.Error("execution stopped", "err", err, "pc", fmt.Sprintf("0x%04x", machine.PC()))
			return h.WaitForQuit()
		}

		return err
	}
}

func logStats(machine *vm.VM) {
	stats := machine.Stats()
	slog.Info("stats", "executed", stats.Executed, "unmatched", stats.Unmatched)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := newCommand(run)
	cmd.SetArgs(os.Args[1:])

	var err error
	// SDL must live on the OS main thread; the emulator runs beside it.
	mainthread.Run(func() {
		err = cmd.ExecuteContext(ctx)
	})

	if err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}
