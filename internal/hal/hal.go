package hal

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unsafe"

	"github.com/faiface/mainthread"
	"github.com/kapitanov/chip8vm/v2/internal/vm"
	"github.com/veandco/go-sdl2/sdl"
)

const (
	WindowWidth  = 1024
	WindowHeight = 512

	frameDelay = 2 * time.Millisecond
)

// HAL owns the SDL window. Every SDL call is made on the main thread, so
// the program must be started through mainthread.Run.
type HAL struct {
	window          *sdl.Window
	renderer        *sdl.Renderer
	texture         *sdl.Texture
	backBuffer      []uint32
	backBufferPitch int
}

var (
	ErrReboot = errors.New("reboot")
	ErrQuit   = errors.New("quit")
)

func New(title string) (*HAL, error) {
	hal := &HAL{
		backBuffer:      make([]uint32, vm.ScreenWidth*vm.ScreenHeight),
		backBufferPitch: int(vm.ScreenWidth) * int(unsafe.Sizeof(uint32(0))),
	}

	err := mainthread.CallErr(func() error {
		return hal.init(title)
	})
	if err != nil {
		return nil, err
	}

	return hal, nil
}

func (hal *HAL) init(title string) error {
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return fmt.Errorf("failed to init sdl: %w", err)
	}

	window, err := sdl.CreateWindow(title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED, WindowWidth, WindowHeight, sdl.WINDOW_SHOWN)
	if err != nil {
		return fmt.Errorf("failed to create sdl window: %w", err)
	}
	slog.Debug("hal: create window")
	hal.window = window

	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED)
	if err != nil {
		return fmt.Errorf("failed to create sdl renderer: %w", err)
	}
	if err = renderer.SetLogicalSize(WindowWidth, WindowHeight); err != nil {
		return fmt.Errorf("failed to resize sdl renderer: %w", err)
	}
	slog.Debug("hal: create renderer")
	hal.renderer = renderer

	texture, err := renderer.CreateTexture(sdl.PIXELFORMAT_ARGB8888, sdl.TEXTUREACCESS_STREAMING, vm.ScreenWidth, vm.ScreenHeight)
	if err != nil {
		return fmt.Errorf("failed to create sdl texture: %w", err)
	}
	slog.Debug("hal: create texture")
	hal.texture = texture

	return nil
}

func (hal *HAL) Shutdown() {
	mainthread.Call(func() {
		if hal.texture != nil {
			if err := hal.texture.Destroy(); err != nil {
				slog.Error("failed to destroy sdl texture", "err", err)
			}
		}

		if hal.renderer != nil {
			if err := hal.renderer.Destroy(); err != nil {
				slog.Error("failed to destroy sdl renderer", "err", err)
			}
		}

		if hal.window != nil {
			if err := hal.window.Destroy(); err != nil {
				slog.Error("failed to destroy sdl window", "err", err)
			}
		}

		sdl.Quit()
	})
}

func (hal *HAL) ReadInput(keyDown func(vm.Key), keyUp func(vm.Key)) error {
	return mainthread.CallErr(func() error {
		for e := sdl.PollEvent(); e != nil; e = sdl.PollEvent() {
			switch e.GetType() {
			case sdl.QUIT:
				slog.Debug("hal: exit requested")
				return ErrQuit

			case sdl.KEYDOWN:
				if err := hal.processKeyDown(e.(*sdl.KeyboardEvent), keyDown); err != nil {
					return err
				}

			case sdl.KEYUP:
				hal.processKeyUp(e.(*sdl.KeyboardEvent), keyUp)
			}
		}

		return nil
	})
}

func (hal *HAL) processKeyDown(e *sdl.KeyboardEvent, callback func(vm.Key)) error {
	switch e.Keysym.Scancode {
	case sdl.SCANCODE_BACKSPACE:
		return ErrReboot
	case sdl.SCANCODE_ESCAPE:
		return ErrQuit
	}

	if key, ok := keyMap(e.Keysym.Scancode); ok {
		callback(key)
	}

	return nil
}

func (hal *HAL) processKeyUp(e *sdl.KeyboardEvent, callback func(vm.Key)) {
	if key, ok := keyMap(e.Keysym.Scancode); ok {
		callback(key)
	}
}

// physicalKeys names the scancodes that vm.Layout refers to.
var physicalKeys = map[sdl.Scancode]rune{
	sdl.SCANCODE_1: '1', sdl.SCANCODE_2: '2', sdl.SCANCODE_3: '3', sdl.SCANCODE_4: '4',
	sdl.SCANCODE_Q: 'Q', sdl.SCANCODE_W: 'W', sdl.SCANCODE_E: 'E', sdl.SCANCODE_R: 'R',
	sdl.SCANCODE_A: 'A', sdl.SCANCODE_S: 'S', sdl.SCANCODE_D: 'D', sdl.SCANCODE_F: 'F',
	sdl.SCANCODE_Z: 'Z', sdl.SCANCODE_X: 'X', sdl.SCANCODE_C: 'C', sdl.SCANCODE_V: 'V',
}

func keyMap(sc sdl.Scancode) (vm.Key, bool) {
	r, ok := physicalKeys[sc]
	if !ok {
		return 0, false
	}
	return vm.KeyFor(r)
}

const (
	bgColor = uint32(0x000000)
	fgColor = uint32(0xbea700)
)

// fill converts the frame buffer into ARGB pixels.
func fill(dst []uint32, d vm.Display) {
	for y := 0; y < vm.ScreenHeight; y++ {
		for x := 0; x < vm.ScreenWidth; x++ {
			color := bgColor
			if d[y][x] {
				color = fgColor
			}
			dst[x+y*vm.ScreenWidth] = color
		}
	}
}

func (hal *HAL) Draw(d vm.Display) error {
	fill(hal.backBuffer, d)

	return mainthread.CallErr(func() error {
		backBufferPtr := unsafe.Pointer(&hal.backBuffer[0])
		if err := hal.texture.Update(nil, backBufferPtr, hal.backBufferPitch); err != nil {
			return fmt.Errorf("failed to update sdl texture: %w", err)
		}

		if err := hal.renderer.Clear(); err != nil {
			return fmt.Errorf("failed to clear sdl renderer: %w", err)
		}

		if err := hal.renderer.Copy(hal.texture, nil, nil); err != nil {
			return fmt.Errorf("failed to copy sdl texture to renderer: %w", err)
		}

		hal.renderer.Present()
		return nil
	})
}

func (hal *HAL) WaitForNextFrame() error {
	time.Sleep(frameDelay)
	return nil
}

// WaitForQuit keeps the last frame on screen until the window is closed.
func (hal *HAL) WaitForQuit() error {
	for {
		quit := false
		mainthread.Call(func() {
			for e := sdl.PollEvent(); e != nil; e = sdl.PollEvent() {
				if e.GetType() == sdl.QUIT {
					quit = true
				}
			}
		})
		if quit {
			return nil
		}

		time.Sleep(10 * frameDelay)
	}
}
