//go:build !windows

package scroll

// X11 and macOS scroll one line per unit.
const wheelUnitsPerClick = 1
