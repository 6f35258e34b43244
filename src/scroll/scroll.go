package scroll

import (
	"log"

	"github.com/go-vgo/robotgo"

	"chat-scraper/src/screenshot"
)

// Scroller advances the chat pane between captures.
type Scroller interface {
	Scroll(region screenshot.Region, step int) error
}

// Mouse parks the pointer at the region centre and turns the wheel down.
type Mouse struct {
	move  func(x, y int)
	wheel func(x, y int)

	// unitsPerClick is how many step units one robotgo wheel click covers.
	unitsPerClick int
}

func NewMouse() *Mouse {
	return &Mouse{
		move:          func(x, y int) { robotgo.Move(x, y) },
		wheel:         func(x, y int) { robotgo.Scroll(x, y) },
		unitsPerClick: wheelUnitsPerClick,
	}
}

// Scroll scrolls the pane down by step wheel units. Non-positive steps
// only move the pointer.
func (m *Mouse) Scroll(region screenshot.Region, step int) error {
	c := region.Center()
	m.move(c.X, c.Y)
	if step <= 0 {
		return nil
	}
	// robotgo treats negative y as scrolling down.
	m.wheel(0, -Clicks(step, m.unitsPerClick))
	return nil
}

// Clicks converts step wheel units to whole wheel clicks, rounding to the
// nearest click. A positive step always yields at least one click.
func Clicks(step, unitsPerClick int) int {
	if step <= 0 {
		return 0
	}
	if unitsPerClick <= 1 {
		return step
	}
	n := (step + unitsPerClick/2) / unitsPerClick
	if n < 1 {
		n = 1
	}
	return n
}

// Noop logs instead of touching the mouse; used for dry runs.
type Noop struct{}

func (Noop) Scroll(region screenshot.Region, step int) error {
	c := region.Center()
	log.Printf("dry-run: would scroll %d at (%d,%d)", step, c.X, c.Y)
	return nil
}
