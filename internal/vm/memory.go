package vm

import "fmt"

const (
	// FontStart is where the hexadecimal glyphs live.
	FontStart = uint16(0x050)

	fontGlyphSize = 5
)

var chip8Font = []uint8{
	0xF0, 0x90, 0x90, 0x90, 0xF0, // 0
	0x20, 0x60, 0x20, 0x20, 0x70, // 1
	0xF0, 0x10, 0xF0, 0x80, 0xF0, // 2
	0xF0, 0x10, 0xF0, 0x10, 0xF0, // 3
	0x90, 0x90, 0xF0, 0x10, 0x10, // 4
	0xF0, 0x80, 0xF0, 0x10, 0xF0, // 5
	0xF0, 0x80, 0xF0, 0x90, 0xF0, // 6
	0xF0, 0x10, 0x20, 0x40, 0x40, // 7
	0xF0, 0x90, 0xF0, 0x90, 0xF0, // 8
	0xF0, 0x90, 0xF0, 0x10, 0xF0, // 9
	0xF0, 0x90, 0xF0, 0x90, 0x90, // A
	0xE0, 0x90, 0xE0, 0x90, 0xE0, // B
	0xF0, 0x80, 0x80, 0x80, 0xF0, // C
	0xE0, 0x90, 0x90, 0x90, 0xE0, // D
	0xF0, 0x80, 0xF0, 0x80, 0xF0, // E
	0xF0, 0x80, 0xF0, 0x80, 0x80, // F
}

// Peek reads one byte of memory.
func (vm *VM) Peek(addr uint16) (uint8, error) {
	if err := vm.checkRange(addr, 1); err != nil {
		return 0, err
	}
	return vm.memory[addr], nil
}

// Poke writes one byte of memory.
func (vm *VM) Poke(addr uint16, v uint8) error {
	if err := vm.checkRange(addr, 1); err != nil {
		return err
	}
	vm.memory[addr] = v
	return nil
}

// checkRange verifies that n bytes starting at addr are addressable.
func (vm *VM) checkRange(addr uint16, n int) error {
	if int(addr)+n > len(vm.memory) {
		return fmt.Errorf("%w: 0x%04x+%d exceeds 0x%04x", ErrOutOfBounds, addr, n, len(vm.memory))
	}
	return nil
}
