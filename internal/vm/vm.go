package vm

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
)

const (
	MemorySize    = 4096
	RegisterCount = 16
	ScreenWidth   = 64
	ScreenHeight  = 32
	KeyCount      = 16

	ProgramStart    = uint16(0x200)
	InstructionSize = 2

	// MaxProgramSize is the room left between ProgramStart and the end of memory.
	MaxProgramSize = MemorySize - int(ProgramStart)

	flagRegister = 0x0F
)

// Config holds construction-time settings. It is never mutated by execution.
type Config struct {
	Quirks Quirks

	// Rand feeds the random instruction. A time-seeded source is used when nil.
	Rand *rand.Rand
}

type VM struct {
	memory    []uint8 // Memory (4k)
	registers []uint8 // V registers (V0-VF)

	stack []uint16 // Return addresses, grows without bound

	pc    uint16 // Program counter
	index uint16 // Index register

	delayTimer uint8 // Delay timer
	soundTimer uint8 // Sound timer

	display  Display
	drawFlag bool // Indicates the display changed since the last Redraw
	halted   bool // Set once a jump targets itself

	quirks Quirks
	rand   *rand.Rand
	stats  Stats

	program []byte
}

// New creates a machine with program loaded at ProgramStart.
func New(program []byte, cfg Config) (*VM, error) {
	if len(program) > MaxProgramSize {
		return nil, fmt.Errorf("%w: %d bytes, at most %d fit", ErrProgramTooLarge, len(program), MaxProgramSize)
	}

	r := cfg.Rand
	if r == nil {
		r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	vm := &VM{
		memory:    make([]uint8, MemorySize),
		registers: make([]uint8, RegisterCount),
		quirks:    cfg.Quirks,
		rand:      r,
		program:   program,
	}
	vm.Reset()

	return vm, nil
}

// Reset restores the power-on state and reloads the program.
func (vm *VM) Reset() {
	vm.pc = ProgramStart
	vm.index = 0
	vm.stack = vm.stack[:0]

	vm.display.Clear()
	vm.drawFlag = true
	vm.halted = false

	slog.Debug("clear registers", "n", len(vm.registers))
	clear(vm.registers)

	slog.Debug("clear memory", "n", len(vm.memory))
	clear(vm.memory)

	slog.Debug("load font", "at", fmt.Sprintf("0x%04x", FontStart), "n", len(chip8Font))
	copy(vm.memory[FontStart:], chip8Font)

	slog.Info("load program", "at", fmt.Sprintf("0x%04x", ProgramStart), "n", len(vm.program))
	copy(vm.memory[ProgramStart:], vm.program)

	vm.delayTimer = 0
	vm.soundTimer = 0
	vm.stats = Stats{}
}

// Step fetches, decodes and executes a single instruction.
// Errors are local to the instruction; the machine stays usable.
func (vm *VM) Step(keys Keypad) error {
	if keys == nil {
		keys = noKeys{}
	}

	opcode, err := vm.fetchOpcode()
	if err != nil {
		return err
	}

	vm.pc += InstructionSize
	return vm.executeOpcode(opcode, keys)
}

// Tick advances both timers by one 60 Hz period.
func (vm *VM) Tick() {
	if vm.delayTimer > 0 {
		vm.delayTimer--
	}

	if vm.soundTimer > 0 {
		vm.soundTimer--
	}
}

func (vm *VM) fetchOpcode() (Opcode, error) {
	if err := vm.checkRange(vm.pc, InstructionSize); err != nil {
		return 0, fmt.Errorf("fetch at pc: %w", err)
	}

	hi := vm.memory[vm.pc]
	lo := vm.memory[vm.pc+1]

	return Opcode(uint16(hi)<<8 | uint16(lo)), nil // Op code is two bytes
}

// Display returns a snapshot of the frame buffer.
func (vm *VM) Display() Display {
	return vm.display
}

// Redraw reports whether the display changed since the previous call.
func (vm *VM) Redraw() bool {
	redraw := vm.drawFlag
	vm.drawFlag = false
	return redraw
}

// Halted reports whether the program has jumped onto itself. Purely diagnostic.
func (vm *VM) Halted() bool {
	return vm.halted
}

func (vm *VM) Quirks() Quirks {
	return vm.quirks
}

func (vm *VM) V(r int) uint8 {
	return vm.registers[r]
}

func (vm *VM) SetV(r int, v uint8) {
	vm.registers[r] = v
}

func (vm *VM) Index() uint16 {
	return vm.index
}

func (vm *VM) SetIndex(addr uint16) {
	vm.index = addr
}

func (vm *VM) PC() uint16 {
	return vm.pc
}

func (vm *VM) SetPC(addr uint16) {
	vm.pc = addr
}

func (vm *VM) StackDepth() int {
	return len(vm.stack)
}

func (vm *VM) DelayTimer() uint8 {
	return vm.delayTimer
}

func (vm *VM) SoundTimer() uint8 {
	return vm.soundTimer
}

func (vm *VM) setFlag(b bool) {
	if b {
		vm.registers[flagRegister] = 1
	} else {
		vm.registers[flagRegister] = 0
	}
}

func (vm *VM) push(addr uint16) {
	vm.stack = append(vm.stack, addr)
}

func (vm *VM) pop() (uint16, error) {
	if len(vm.stack) == 0 {
		return 0, ErrStackUnderflow
	}

	addr := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return addr, nil
}
