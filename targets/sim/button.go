//go:build linux

package main

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"goclock/core"
)

// The keyboard stands in for the physical button. A key press has no
// release event, so each received byte opens (or extends) a held
// window a bit longer than the X autorepeat delay; holding the key
// keeps the window open and reads as a continuous press, a single tap
// reads as a short one. Well under the dismiss-hold threshold either
// way until the key is actually held.
const keyHeldWindowMillis = 700

// KeyButton tracks the emulated button level
type KeyButton struct {
	mu        sync.Mutex
	downUntil uint32
}

// Press opens or extends the held window
func (b *KeyButton) Press() {
	b.mu.Lock()
	b.downUntil = core.Millis() + keyHeldWindowMillis
	b.mu.Unlock()
}

// Down reports whether the emulated button is currently held
func (b *KeyButton) Down() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.downUntil == 0 {
		return false
	}
	return int32(core.Millis()-b.downUntil) < 0
}

// SimGPIODriver backs the two pins the core asks for: the button reads
// from the keyboard window, the buzzer rings the terminal bell.
type SimGPIODriver struct {
	button    *KeyButton
	buttonPin core.GPIOPin
	buzzerPin core.GPIOPin

	buzzerOn bool
}

func NewSimGPIODriver(button *KeyButton, buttonPin, buzzerPin core.GPIOPin) *SimGPIODriver {
	return &SimGPIODriver{
		button:    button,
		buttonPin: buttonPin,
		buzzerPin: buzzerPin,
	}
}

func (d *SimGPIODriver) ConfigureOutput(pin core.GPIOPin) error        { return nil }
func (d *SimGPIODriver) ConfigureInputPullUp(pin core.GPIOPin) error   { return nil }
func (d *SimGPIODriver) ConfigureInputPullDown(pin core.GPIOPin) error { return nil }

func (d *SimGPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	if pin == d.buzzerPin && value != d.buzzerOn {
		d.buzzerOn = value
		if value {
			// Terminal bell as the buzzer voice
			os.Stdout.WriteString("\a")
		}
	}
	return nil
}

func (d *SimGPIODriver) GetPin(pin core.GPIOPin) (bool, error) {
	if pin == d.buzzerPin {
		return d.buzzerOn, nil
	}
	return d.ReadPin(pin), nil
}

// ReadPin returns the electrical level: the button is active low
func (d *SimGPIODriver) ReadPin(pin core.GPIOPin) bool {
	if pin == d.buttonPin {
		return !d.button.Down()
	}
	return false
}

// rawTerminal puts stdin into raw-ish mode: no line buffering, no
// echo. ISIG stays on so Ctrl-C still raises SIGINT.
type rawTerminal struct {
	fd    int
	saved *unix.Termios
}

func makeRawTerminal() (*rawTerminal, error) {
	fd := int(os.Stdin.Fd())
	saved, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, err
	}

	raw := *saved
	raw.Lflag &^= unix.ICANON | unix.ECHO
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		return nil, err
	}

	return &rawTerminal{fd: fd, saved: saved}, nil
}

// Restore puts the terminal back the way it was
func (t *rawTerminal) Restore() {
	if t.saved != nil {
		unix.IoctlSetTermios(t.fd, unix.TCSETS, t.saved)
	}
}

// keyReader feeds stdin bytes to the main loop one at a time
func keyReader(keys chan<- byte) {
	var buf [1]byte
	for {
		n, err := os.Stdin.Read(buf[:])
		if err != nil {
			close(keys)
			return
		}
		if n == 1 {
			keys <- buf[0]
		}
	}
}
