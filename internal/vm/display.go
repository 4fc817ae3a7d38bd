package vm

import "strings"

const spriteWidth = 8

// Display is the monochrome frame buffer, indexed [y][x].
type Display [ScreenHeight][ScreenWidth]bool

func (d *Display) Clear() {
	*d = Display{}
}

func (d Display) Pixel(x, y int) bool {
	return d[y][x]
}

// Lit counts the pixels that are set.
func (d Display) Lit() int {
	n := 0
	for y := range d {
		for x := range d[y] {
			if d[y][x] {
				n++
			}
		}
	}
	return n
}

// DrawSprite XORs rows onto the display with the top-left corner at (x, y).
// The origin wraps around the screen; the sprite itself is clipped at the
// right and bottom edges. It reports whether any lit pixel was switched off.
func (d *Display) DrawSprite(x, y uint8, rows []uint8) bool {
	px := int(x) % ScreenWidth
	py := int(y) % ScreenHeight

	collision := false
	for dy, row := range rows {
		sy := py + dy
		if sy >= ScreenHeight {
			break
		}

		for dx := 0; dx < spriteWidth; dx++ {
			sx := px + dx
			if sx >= ScreenWidth {
				break
			}

			if row&(0x80>>dx) == 0 {
				continue
			}

			if d[sy][sx] {
				collision = true
			}
			d[sy][sx] = !d[sy][sx]
		}
	}

	return collision
}

// visibleRows is how many of n sprite rows starting at y land on screen.
func visibleRows(y uint8, n int) int {
	py := int(y) % ScreenHeight
	return min(n, ScreenHeight-py)
}

// String renders the buffer with '#' for lit and '.' for dark pixels.
func (d Display) String() string {
	var sb strings.Builder
	sb.Grow((ScreenWidth + 1) * ScreenHeight)
	for y := range d {
		for x := range d[y] {
			if d[y][x] {
				sb.WriteByte('#')
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
