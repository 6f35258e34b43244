//go:build windows

package scroll

// robotgo multiplies each click by WHEEL_DELTA (120) on Windows, while
// SCROLL_STEP is given in raw wheel units.
const wheelUnitsPerClick = 120
