package vm

type Key uint8

const (
	Key0 = Key(iota)
	Key1
	Key2
	Key3
	Key4
	Key5
	Key6
	Key7
	Key8
	Key9
	KeyA
	KeyB
	KeyC
	KeyD
	KeyE
	KeyF
)

// Keypad answers whether a logical key is currently held.
type Keypad interface {
	Pressed(key Key) bool
}

// Layout maps each logical key to the physical key the host must bind it to.
//
//	Physical                Logical
//	================        =================
//	| 1 | 2 | 3 | 4 |       | 1 | 2 | 3 | C |
//	| Q | W | E | R |       | 4 | 5 | 6 | D |
//	| A | S | D | F |  <=>  | 7 | 8 | 9 | E |
//	| Z | X | C | V |       | A | 0 | B | F |
//	================        =================
var Layout = [KeyCount]rune{
	'X', '1', '2', '3',
	'Q', 'W', 'E', 'A',
	'S', 'D', 'Z', 'C',
	'4', 'R', 'F', 'V',
}

// KeyFor returns the logical key bound to a physical key.
func KeyFor(physical rune) (Key, bool) {
	for k, r := range Layout {
		if r == physical {
			return Key(k), true
		}
	}
	return 0, false
}

// KeyState is a Keypad backed by a plain array of held keys.
type KeyState [KeyCount]bool

func (s *KeyState) Press(key Key) {
	s[key&0x0F] = true
}

func (s *KeyState) Release(key Key) {
	s[key&0x0F] = false
}

func (s *KeyState) Pressed(key Key) bool {
	return int(key) < KeyCount && s[key]
}

type noKeys struct{}

func (noKeys) Pressed(Key) bool { return false }

// keyHeld treats register values outside the keypad range as unpressed.
func keyHeld(keys Keypad, v uint8) bool {
	if int(v) >= KeyCount {
		return false
	}
	return keys.Pressed(Key(v))
}
