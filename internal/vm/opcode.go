package vm

import (
	"context"
	"fmt"
	"log/slog"
)

// Opcode is a fetched two-byte instruction. Its fields are extracted on demand.
type Opcode uint16

func (op Opcode) Group() uint8 { return uint8(op >> 12) }
func (op Opcode) X() uint8     { return uint8(op>>8) & 0x0F }
func (op Opcode) Y() uint8     { return uint8(op>>4) & 0x0F }
func (op Opcode) N() uint8     { return uint8(op) & 0x0F }
func (op Opcode) NN() uint8    { return uint8(op) }
func (op Opcode) NNN() uint16  { return uint16(op) & 0x0FFF }

func (vm *VM) executeOpcode(opcode Opcode, keys Keypad) error {
	instr := decode(opcode)

	if !vm.halted && slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		slog.Debug(
			"exec",
			"pc", fmt.Sprintf("0x%04x", vm.pc-InstructionSize),
			"opcode", fmt.Sprintf("0x%04x", uint16(opcode)),
			"instr", instr.Name(opcode, vm.quirks),
		)
	}

	vm.stats.record(instr.Mnemonic, instr.Mnemonic != unknownInstruction.Mnemonic)

	return instr.Execute(vm, opcode, keys)
}

// Disassemble renders opcode the way the execution trace does.
func Disassemble(opcode uint16, q Quirks) string {
	op := Opcode(opcode)
	return decode(op).Name(op, q)
}

// Mnemonic returns the short instruction name used as the Stats key.
func Mnemonic(opcode uint16) string {
	return decode(Opcode(opcode)).Mnemonic
}

type instruction struct {
	Mnemonic string
	Name     func(op Opcode, q Quirks) string

	// Execute runs with PC already pointing at the next instruction.
	Execute func(vm *VM, op Opcode, keys Keypad) error
}

func decode(op Opcode) instruction {
	switch op.Group() {
	case 0x0:
		switch op.NNN() {
		case 0x0E0:
			// 00E0 - Clear screen
			return clsInstruction

		case 0x0EE:
			// 00EE - Return from subroutine
			return rtsInstruction
		}

	case 0x1:
		// 1NNN - Jumps to address NNN
		return jmpInstruction

	case 0x2:
		// 2NNN - Calls subroutine at NNN
		return jsrInstruction

	case 0x3:
		// 3XNN - Skips the next instruction if VX equals NN
		return skeq1Instruction

	case 0x4:
		// 4XNN - Skips the next instruction if VX does not equal NN
		return skne1Instruction

	case 0x5:
		// 5XY0 - Skips the next instruction if VX equals VY
		return skeq2Instruction

	case 0x6:
		// 6XNN - Sets VX to NN
		return mov1Instruction

	case 0x7:
		// 7XNN - Adds NN to VX, no carry
		return add1Instruction

	case 0x8:
		switch op.N() {
		case 0x0:
			// 8XY0 - Sets VX to the value of VY
			return mov2Instruction

		case 0x1:
			// 8XY1 - Sets VX to (VX OR VY)
			return orInstruction

		case 0x2:
			// 8XY2 - Sets VX to (VX AND VY)
			return andInstruction

		case 0x3:
			// 8XY3 - Sets VX to (VX XOR VY)
			return xorInstruction

		case 0x4:
			// 8XY4 - Adds VY to VX. VF is set to 1 on carry, 0 otherwise.
			return add2Instruction

		case 0x5:
			// 8XY5 - VY is subtracted from VX. VF is set to 0 on borrow, 1 otherwise.
			return subInstruction

		case 0x6:
			// 8XY6 - Shifts right by one. VF gets the bit shifted out.
			return shrInstruction

		case 0x7:
			// 8XY7 - Sets VX to VY minus VX. VF is set to 0 on borrow, 1 otherwise.
			return rsbInstruction

		case 0xE:
			// 8XYE - Shifts left by one. VF gets the bit shifted out.
			return shlInstruction
		}

	case 0x9:
		// 9XY0 - Skips the next instruction if VX doesn't equal VY
		return skne2Instruction

	case 0xA:
		// ANNN - Sets I to the address NNN
		return mviInstruction

	case 0xB:
		// BNNN - Jumps to the address NNN plus V0 (or VX)
		return jmiInstruction

	case 0xC:
		// CXNN - Sets VX to a random number, masked by NN
		return randInstruction

	case 0xD:
		// DXYN - Draws N rows of the sprite at I at coordinate (VX, VY).
		// VF is set to 1 if any lit pixel is switched off.
		return spriteInstruction

	case 0xE:
		switch op.NN() {
		case 0x9E:
			// EX9E - Skips the next instruction if the key stored in VX is pressed
			return skprInstruction

		case 0xA1:
			// EXA1 - Skips the next instruction if the key stored in VX isn't pressed
			return skupInstruction
		}

	case 0xF:
		switch op.NN() {
		case 0x07:
			// FX07 - Sets VX to the value of the delay timer
			return gdelayInstruction

		case 0x0A:
			// FX0A - A key press is awaited, and then stored in VX
			return keyInstruction

		case 0x15:
			// FX15 - Sets the delay timer to VX
			return sdelayInstruction

		case 0x18:
			// FX18 - Sets the sound timer to VX
			return ssoundInstruction

		case 0x1E:
			// FX1E - Adds VX to I. VF is set to 1 when I+VX > 0xFFF.
			return adiInstruction

		case 0x29:
			// FX29 - Sets I to the font glyph for the low nibble of VX
			return fontInstruction

		case 0x33:
			// FX33 - Stores the BCD digits of VX at I, I+1 and I+2
			return bcdInstruction

		case 0x55:
			// FX55 - Stores V0 to VX in memory starting at address I
			return strInstruction

		case 0x65:
			// FX65 - Reads memory starting at address I into V0...VX
			return ldrInstruction
		}
	}

	return unknownInstruction
}

func (vm *VM) skipIf(cond bool) {
	if cond {
		vm.pc += InstructionSize
	}
}

var (
	// 00E0	cls	Clear the screen
	clsInstruction = instruction{
		Mnemonic: "cls",
		Name: func(op Opcode, _ Quirks) string {
			return "cls"
		},
		Execute: func(vm *VM, op Opcode, _ Keypad) error {
			vm.display.Clear()
			vm.drawFlag = true
			return nil
		},
	}

	// 00EE	rts	return from subroutine call
	rtsInstruction = instruction{
		Mnemonic: "rts",
		Name: func(op Opcode, _ Quirks) string {
			return "rts"
		},
		Execute: func(vm *VM, op Opcode, _ Keypad) error {
			addr, err := vm.pop()
			if err != nil {
				return fmt.Errorf("rts at 0x%04x: %w", vm.pc-InstructionSize, err)
			}
			vm.pc = addr
			return nil
		},
	}

	// 1xxx	jmp xxx	jump to address xxx
	jmpInstruction = instruction{
		Mnemonic: "jmp",
		Name: func(op Opcode, _ Quirks) string {
			return fmt.Sprintf("jmp 0x%04x", op.NNN())
		},
		Execute: func(vm *VM, op Opcode, _ Keypad) error {
			vm.jump(op.NNN())
			return nil
		},
	}

	// 2xxx	jsr xxx	jump to subroutine at address xxx
	jsrInstruction = instruction{
		Mnemonic: "jsr",
		Name: func(op Opcode, _ Quirks) string {
			return fmt.Sprintf("jsr 0x%04x", op.NNN())
		},
		Execute: func(vm *VM, op Opcode, _ Keypad) error {
			vm.push(vm.pc)
			vm.pc = op.NNN()
			return nil
		},
	}

	// 3rxx	skeq vr,xx	skip if register r = constant
	skeq1Instruction = instruction{
		Mnemonic: "skeq",
		Name: func(op Opcode, _ Quirks) string {
			return fmt.Sprintf("skeq v%x, %d", op.X(), op.NN())
		},
		Execute: func(vm *VM, op Opcode, _ Keypad) error {
			vm.skipIf(vm.registers[op.X()] == op.NN())
			return nil
		},
	}

	// 4rxx	skne vr,xx	skip if register r <> constant
	skne1Instruction = instruction{
		Mnemonic: "skne",
		Name: func(op Opcode, _ Quirks) string {
			return fmt.Sprintf("skne v%x, %d", op.X(), op.NN())
		},
		Execute: func(vm *VM, op Opcode, _ Keypad) error {
			vm.skipIf(vm.registers[op.X()] != op.NN())
			return nil
		},
	}

	// 5ry0	skeq vr,vy	skip if register r = register y
	skeq2Instruction = instruction{
		Mnemonic: "skeq",
		Name: func(op Opcode, _ Quirks) string {
			return fmt.Sprintf("skeq v%x, v%x", op.X(), op.Y())
		},
		Execute: func(vm *VM, op Opcode, _ Keypad) error {
			vm.skipIf(vm.registers[op.X()] == vm.registers[op.Y()])
			return nil
		},
	}

	// 6rxx	mov vr,xx	move constant to register r
	mov1Instruction = instruction{
		Mnemonic: "mov",
		Name: func(op Opcode, _ Quirks) string {
			return fmt.Sprintf("mov v%x, %d", op.X(), op.NN())
		},
		Execute: func(vm *VM, op Opcode, _ Keypad) error {
			vm.registers[op.X()] = op.NN()
			return nil
		},
	}

	// 7rxx	add vr,xx	add constant to register r	No carry generated
	add1Instruction = instruction{
		Mnemonic: "add",
		Name: func(op Opcode, _ Quirks) string {
			return fmt.Sprintf("add v%x, %d", op.X(), op.NN())
		},
		Execute: func(vm *VM, op Opcode, _ Keypad) error {
			vm.registers[op.X()] += op.NN()
			return nil
		},
	}

	// 8ry0	mov vr,vy	move register vy into vr
	mov2Instruction = instruction{
		Mnemonic: "mov",
		Name: func(op Opcode, _ Quirks) string {
			return fmt.Sprintf("mov v%x, v%x", op.X(), op.Y())
		},
		Execute: func(vm *VM, op Opcode, _ Keypad) error {
			vm.registers[op.X()] = vm.registers[op.Y()]
			return nil
		},
	}

	// 8ry1	or rx,ry	or register vy into register vx
	orInstruction = instruction{
		Mnemonic: "or",
		Name: func(op Opcode, _ Quirks) string {
			return fmt.Sprintf("or v%x, v%x", op.X(), op.Y())
		},
		Execute: func(vm *VM, op Opcode, _ Keypad) error {
			vm.registers[op.X()] |= vm.registers[op.Y()]
			return nil
		},
	}

	// 8ry2	and rx,ry	and register vy into register vx
	andInstruction = instruction{
		Mnemonic: "and",
		Name: func(op Opcode, _ Quirks) string {
			return fmt.Sprintf("and v%x, v%x", op.X(), op.Y())
		},
		Execute: func(vm *VM, op Opcode, _ Keypad) error {
			vm.registers[op.X()] &= vm.registers[op.Y()]
			return nil
		},
	}

	// 8ry3	xor rx,ry	exclusive or register ry into register rx
	xorInstruction = instruction{
		Mnemonic: "xor",
		Name: func(op Opcode, _ Quirks) string {
			return fmt.Sprintf("xor v%x, v%x", op.X(), op.Y())
		},
		Execute: func(vm *VM, op Opcode, _ Keypad) error {
			vm.registers[op.X()] ^= vm.registers[op.Y()]
			return nil
		},
	}

	// 8ry4	add vr,vy	add register vy to vr,carry in vf
	add2Instruction = instruction{
		Mnemonic: "add",
		Name: func(op Opcode, _ Quirks) string {
			return fmt.Sprintf("add v%x, v%x", op.X(), op.Y())
		},
		Execute: func(vm *VM, op Opcode, _ Keypad) error {
			sum := uint16(vm.registers[op.X()]) + uint16(vm.registers[op.Y()])

			vm.registers[op.X()] = uint8(sum)
			vm.setFlag(sum > 0xFF)
			return nil
		},
	}

	// 8ry5	sub vr,vy	subtract register vy from vr	vf set to 0 on borrow
	subInstruction = instruction{
		Mnemonic: "sub",
		Name: func(op Opcode, _ Quirks) string {
			return fmt.Sprintf("sub v%x, v%x", op.X(), op.Y())
		},
		Execute: func(vm *VM, op Opcode, _ Keypad) error {
			x := vm.registers[op.X()]
			y := vm.registers[op.Y()]

			vm.registers[op.X()] = x - y
			vm.setFlag(y <= x)
			return nil
		},
	}

	// 8ry6	shr vr	shift register vr right, bit 0 goes into register vf
	//
	// The value is always read from VX; the quirk only changes how the
	// instruction is described.
	shrInstruction = instruction{
		Mnemonic: "shr",
		Name: func(op Opcode, q Quirks) string {
			if q.ShiftIgnoresVY {
				return fmt.Sprintf("shr v%x", op.X())
			}
			return fmt.Sprintf("shr v%x, v%x", op.X(), op.Y())
		},
		Execute: func(vm *VM, op Opcode, _ Keypad) error {
			v := vm.registers[op.X()]

			vm.registers[op.X()] = v >> 1
			vm.registers[flagRegister] = v & 0x1
			return nil
		},
	}

	// 8ry7	rsb vr,vy	subtract register vr from register vy, result in vr	vf set to 0 on borrow
	rsbInstruction = instruction{
		Mnemonic: "rsb",
		Name: func(op Opcode, _ Quirks) string {
			return fmt.Sprintf("rsb v%x, v%x", op.X(), op.Y())
		},
		Execute: func(vm *VM, op Opcode, _ Keypad) error {
			x := vm.registers[op.X()]
			y := vm.registers[op.Y()]

			vm.registers[op.X()] = y - x
			vm.setFlag(x <= y)
			return nil
		},
	}

	// 8rye	shl vr	shift register vr left, bit 7 goes into register vf
	shlInstruction = instruction{
		Mnemonic: "shl",
		Name: func(op Opcode, q Quirks) string {
			if q.ShiftIgnoresVY {
				return fmt.Sprintf("shl v%x", op.X())
			}
			return fmt.Sprintf("shl v%x, v%x", op.X(), op.Y())
		},
		Execute: func(vm *VM, op Opcode, _ Keypad) error {
			v := vm.registers[op.X()]

			vm.registers[op.X()] = v << 1
			vm.registers[flagRegister] = v >> 7
			return nil
		},
	}

	// 9ry0	skne vr,vy	skip if register r <> register y
	skne2Instruction = instruction{
		Mnemonic: "skne",
		Name: func(op Opcode, _ Quirks) string {
			return fmt.Sprintf("skne v%x, v%x", op.X(), op.Y())
		},
		Execute: func(vm *VM, op Opcode, _ Keypad) error {
			vm.skipIf(vm.registers[op.X()] != vm.registers[op.Y()])
			return nil
		},
	}

	// axxx	mvi xxx	Load index register with constant xxx
	mviInstruction = instruction{
		Mnemonic: "mvi",
		Name: func(op Opcode, _ Quirks) string {
			return fmt.Sprintf("mvi 0x%04x", op.NNN())
		},
		Execute: func(vm *VM, op Opcode, _ Keypad) error {
			vm.index = op.NNN()
			return nil
		},
	}

	// bxxx	jmi xxx	Jump to address xxx+register v0 (vr with the jump quirk)
	jmiInstruction = instruction{
		Mnemonic: "jmi",
		Name: func(op Opcode, q Quirks) string {
			if q.JumpUsesVX {
				return fmt.Sprintf("jmi 0x%04x, v%x", op.NNN(), op.X())
			}
			return fmt.Sprintf("jmi 0x%04x, v0", op.NNN())
		},
		Execute: func(vm *VM, op Opcode, _ Keypad) error {
			offset := vm.registers[0]
			if vm.quirks.JumpUsesVX {
				offset = vm.registers[op.X()]
			}

			vm.jump(op.NNN() + uint16(offset))
			return nil
		},
	}

	// crxx	rand vr,xx	vr = random byte masked by xx
	randInstruction = instruction{
		Mnemonic: "rand",
		Name: func(op Opcode, _ Quirks) string {
			return fmt.Sprintf("rand v%x, 0x%02x", op.X(), op.NN())
		},
		Execute: func(vm *VM, op Opcode, _ Keypad) error {
			vm.registers[op.X()] = uint8(vm.rand.IntN(256)) & op.NN()
			return nil
		},
	}

	// drys	sprite rx,ry,s	Draw sprite at screen location rx,ry height s
	// Sprites stored in memory at location in index register, 8 bits wide.
	// The origin wraps around the screen, the sprite body is clipped.
	// If when drawn, clears a pixel, vf is set to 1 otherwise it is zero.
	// All drawing is xor drawing (e.g. it toggles the screen pixels)
	spriteInstruction = instruction{
		Mnemonic: "sprite",
		Name: func(op Opcode, _ Quirks) string {
			return fmt.Sprintf("sprite v%x, v%x, %d", op.X(), op.Y(), op.N())
		},
		Execute: func(vm *VM, op Opcode, _ Keypad) error {
			x := vm.registers[op.X()]
			y := vm.registers[op.Y()]

			// Rows below the screen are never read.
			n := visibleRows(y, int(op.N()))
			if err := vm.checkRange(vm.index, n); err != nil {
				return fmt.Errorf("sprite at I: %w", err)
			}

			rows := vm.memory[vm.index : int(vm.index)+n]
			vm.setFlag(vm.display.DrawSprite(x, y, rows))
			vm.drawFlag = true
			return nil
		},
	}

	// ek9e	skpr k	skip if key (register rk) pressed
	skprInstruction = instruction{
		Mnemonic: "skpr",
		Name: func(op Opcode, _ Quirks) string {
			return fmt.Sprintf("skpr v%x", op.X())
		},
		Execute: func(vm *VM, op Opcode, keys Keypad) error {
			vm.skipIf(keyHeld(keys, vm.registers[op.X()]))
			return nil
		},
	}

	// eka1	skup k	skip if key (register rk) not pressed
	skupInstruction = instruction{
		Mnemonic: "skup",
		Name: func(op Opcode, _ Quirks) string {
			return fmt.Sprintf("skup v%x", op.X())
		},
		Execute: func(vm *VM, op Opcode, keys Keypad) error {
			vm.skipIf(!keyHeld(keys, vm.registers[op.X()]))
			return nil
		},
	}

	// fr07	gdelay vr	get delay timer into vr
	gdelayInstruction = instruction{
		Mnemonic: "gdelay",
		Name: func(op Opcode, _ Quirks) string {
			return fmt.Sprintf("gdelay v%x", op.X())
		},
		Execute: func(vm *VM, op Opcode, _ Keypad) error {
			vm.registers[op.X()] = vm.delayTimer
			return nil
		},
	}

	// fr0a	key vr	wait for keypress, put key in register vr
	//
	// Waiting is done by rewinding PC so the same instruction runs again on
	// the next step; timers and the host loop keep going meanwhile.
	keyInstruction = instruction{
		Mnemonic: "key",
		Name: func(op Opcode, _ Quirks) string {
			return fmt.Sprintf("key v%x", op.X())
		},
		Execute: func(vm *VM, op Opcode, keys Keypad) error {
			for k := Key0; k <= KeyF; k++ {
				if keys.Pressed(k) {
					vm.registers[op.X()] = uint8(k)
					return nil
				}
			}

			vm.pc -= InstructionSize
			return nil
		},
	}

	// fr15	sdelay vr	set the delay timer to vr
	sdelayInstruction = instruction{
		Mnemonic: "sdelay",
		Name: func(op Opcode, _ Quirks) string {
			return fmt.Sprintf("sdelay v%x", op.X())
		},
		Execute: func(vm *VM, op Opcode, _ Keypad) error {
			vm.delayTimer = vm.registers[op.X()]
			return nil
		},
	}

	// fr18	ssound vr	set the sound timer to vr
	ssoundInstruction = instruction{
		Mnemonic: "ssound",
		Name: func(op Opcode, _ Quirks) string {
			return fmt.Sprintf("ssound v%x", op.X())
		},
		Execute: func(vm *VM, op Opcode, _ Keypad) error {
			vm.soundTimer = vm.registers[op.X()]
			return nil
		},
	}

	// fr1e	adi vr	add register vr to the index register
	// I wraps at 12 bits, vf reports the overflow.
	adiInstruction = instruction{
		Mnemonic: "adi",
		Name: func(op Opcode, _ Quirks) string {
			return fmt.Sprintf("adi v%x", op.X())
		},
		Execute: func(vm *VM, op Opcode, _ Keypad) error {
			sum := uint32(vm.index) + uint32(vm.registers[op.X()])

			vm.index = uint16(sum & 0x0FFF)
			vm.setFlag(sum > 0x0FFF)
			return nil
		},
	}

	// fr29	font vr	point I to the sprite for hexadecimal character in vr	Sprite is 5 bytes high
	fontInstruction = instruction{
		Mnemonic: "font",
		Name: func(op Opcode, _ Quirks) string {
			return fmt.Sprintf("font v%x", op.X())
		},
		Execute: func(vm *VM, op Opcode, _ Keypad) error {
			digit := uint16(vm.registers[op.X()] & 0x0F)
			vm.index = FontStart + digit*fontGlyphSize
			return nil
		},
	}

	// fr33	bcd vr	store the bcd representation of register vr at location I,I+1,I+2	Doesn't change I
	bcdInstruction = instruction{
		Mnemonic: "bcd",
		Name: func(op Opcode, _ Quirks) string {
			return fmt.Sprintf("bcd v%x", op.X())
		},
		Execute: func(vm *VM, op Opcode, _ Keypad) error {
			if err := vm.checkRange(vm.index, 3); err != nil {
				return fmt.Errorf("bcd at I: %w", err)
			}

			x := vm.registers[op.X()]
			vm.memory[vm.index] = x / 100
			vm.memory[vm.index+1] = (x / 10) % 10
			vm.memory[vm.index+2] = x % 10
			return nil
		},
	}

	// fr55	str v0-vr	store registers v0-vr at location I onwards	I = I + r unless the no-increment quirk is set
	strInstruction = instruction{
		Mnemonic: "str",
		Name: func(op Opcode, _ Quirks) string {
			return fmt.Sprintf("str v0-v%x", op.X())
		},
		Execute: func(vm *VM, op Opcode, _ Keypad) error {
			n := int(op.X()) + 1
			if err := vm.checkRange(vm.index, n); err != nil {
				return fmt.Errorf("str at I: %w", err)
			}

			copy(vm.memory[vm.index:], vm.registers[:n])
			vm.advanceIndex(op.X())
			return nil
		},
	}

	// fr65	ldr v0-vr	load registers v0-vr from location I onwards	I = I + r unless the no-increment quirk is set
	ldrInstruction = instruction{
		Mnemonic: "ldr",
		Name: func(op Opcode, _ Quirks) string {
			return fmt.Sprintf("ldr v0-v%x", op.X())
		},
		Execute: func(vm *VM, op Opcode, _ Keypad) error {
			n := int(op.X()) + 1
			if err := vm.checkRange(vm.index, n); err != nil {
				return fmt.Errorf("ldr at I: %w", err)
			}

			copy(vm.registers[:n], vm.memory[vm.index:])
			vm.advanceIndex(op.X())
			return nil
		},
	}

	unknownInstruction = instruction{
		Mnemonic: "unknown",
		Name: func(op Opcode, _ Quirks) string {
			return fmt.Sprintf("unknown 0x%04X", uint16(op))
		},
		Execute: func(vm *VM, op Opcode, _ Keypad) error {
			return fmt.Errorf("%w 0x%04X at 0x%04x", ErrUnmatchedOpcode, uint16(op), vm.pc-InstructionSize)
		},
	}
)

// jump moves PC to addr, flagging a jump onto the instruction itself.
func (vm *VM) jump(addr uint16) {
	if addr == vm.pc-InstructionSize {
		vm.halted = true
	}
	vm.pc = addr
}

func (vm *VM) advanceIndex(x uint8) {
	if !vm.quirks.NoIndexIncrement {
		vm.index += uint16(x)
	}
}
