// Package hotkey watches for a global key combination that stops a run.
// Key codes are Windows virtual-key codes as reported by gohook's Rawcode.
package hotkey

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	gohook "github.com/robotn/gohook"
)

// Combo tracks which keys of a combination are currently held.
type Combo struct {
	name string
	keys []key
	mu   sync.Mutex
}

type key struct {
	name     string
	rawcodes []uint16
	pressed  bool
}

// ParseCombo builds a Combo from a string such as "Ctrl+Alt+Q".
func ParseCombo(combo string) (*Combo, error) {
	names := parseHotkey(combo)
	c := &Combo{name: combo}
	for _, n := range names {
		codes := keyNameToRawcodes(n)
		if len(codes) == 0 {
			return nil, fmt.Errorf("unknown key %q in hotkey %q", n, combo)
		}
		c.keys = append(c.keys, key{name: n, rawcodes: codes})
	}
	if len(c.keys) == 0 {
		return nil, fmt.Errorf("empty hotkey %q", combo)
	}
	return c, nil
}

func (c *Combo) String() string { return c.name }

// KeyDown records a press and reports whether the full combination is now
// held. The state resets after a match so holding the keys fires once.
func (c *Combo) KeyDown(rawcode uint16) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.set(rawcode, true)
	for i := range c.keys {
		if !c.keys[i].pressed {
			return false
		}
	}
	for i := range c.keys {
		c.keys[i].pressed = false
	}
	return true
}

// KeyUp records a release.
func (c *Combo) KeyUp(rawcode uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(rawcode, false)
}

func (c *Combo) set(rawcode uint16, pressed bool) {
	for i := range c.keys {
		for _, rc := range c.keys[i].rawcodes {
			if rc == rawcode {
				c.keys[i].pressed = pressed
			}
		}
	}
}

// Listen starts a global keyboard hook and calls callback each time combo is
// pressed, until ctx is done.
func Listen(ctx context.Context, combo string, callback func()) error {
	c, err := ParseCombo(combo)
	if err != nil {
		return err
	}

	evChan := gohook.Start()
	if evChan == nil {
		return fmt.Errorf("gohook.Start returned nil channel")
	}
	log.Printf("Hotkey listener configured for: %s", c)

	go func() {
		<-ctx.Done()
		gohook.End()
	}()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("PANIC in hotkey goroutine: %v", r)
			}
		}()
		for ev := range evChan {
			switch ev.Kind {
			case gohook.KeyDown:
				if c.KeyDown(ev.Rawcode) {
					log.Printf("Hotkey %s pressed", c)
					if callback != nil {
						callback()
					}
				}
			case gohook.KeyUp:
				c.KeyUp(ev.Rawcode)
			}
		}
	}()
	return nil
}

// parseHotkey converts a hotkey string like "Ctrl+Alt+q" to normalized key names
func parseHotkey(hotkeyConfig string) []string {
	var keys []string
	for _, part := range strings.Split(strings.ToLower(hotkeyConfig), "+") {
		part = strings.TrimSpace(part)
		switch part {
		case "":
			continue
		case "control":
			keys = append(keys, "ctrl")
		case "win", "cmd", "super":
			keys = append(keys, "cmd")
		default:
			keys = append(keys, part)
		}
	}
	return keys
}

var specialKeys = map[string][]uint16{
	"ctrl":      {162, 163}, // VK_LCONTROL, VK_RCONTROL
	"alt":       {164, 165}, // VK_LMENU, VK_RMENU
	"shift":     {160, 161}, // VK_LSHIFT, VK_RSHIFT
	"cmd":       {91, 92},   // VK_LWIN, VK_RWIN
	"space":     {32},
	"enter":     {13},
	"return":    {13},
	"esc":       {27},
	"escape":    {27},
	"tab":       {9},
	"backspace": {8},
	"delete":    {46},
	"del":       {46},
	"insert":    {45},
	"home":      {36},
	"end":       {35},
	"pageup":    {33},
	"pagedown":  {34},
	"pause":     {19},
	"left":      {37},
	"up":        {38},
	"right":     {39},
	"down":      {40},
}

// keyNameToRawcodes maps a key name to its Windows virtual-key codes. Modifiers
// map to both left and right variants.
func keyNameToRawcodes(keyName string) []uint16 {
	keyName = strings.ToLower(strings.TrimSpace(keyName))
	if keyName == "win" || keyName == "super" {
		keyName = "cmd"
	}

	if codes, ok := specialKeys[keyName]; ok {
		return codes
	}

	if len(keyName) == 1 {
		ch := keyName[0]
		switch {
		case ch >= 'a' && ch <= 'z':
			return []uint16{uint16(ch-'a') + 65}
		case ch >= '0' && ch <= '9':
			return []uint16{uint16(ch-'0') + 48}
		}
	}

	// F1..F24 are VK 112..135.
	var n int
	if _, err := fmt.Sscanf(keyName, "f%d", &n); err == nil && n >= 1 && n <= 24 && keyName == fmt.Sprintf("f%d", n) {
		return []uint16{uint16(111 + n)}
	}

	return nil
}
