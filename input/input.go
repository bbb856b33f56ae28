// Input snapshot model and SOCD cleaning
// https://github.com/arcade-dev/ds4gadget
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package input defines the typed snapshot of controller state consumed by
// the PS4 HID report codec, and the SOCD (Simultaneous Opposing Cardinal
// Directions) policy that reconciles contradictory directional input before
// it reaches the hat switch or left-stick axes.
package input

// Direction is the cleaned result of a pair of opposing directional
// buttons along one axis.
type Direction int

const (
	// DirNone means neither opposing button is held, or, on the horizontal
	// axis only, both are.
	DirNone Direction = iota
	// DirNegative means the negative-sense button (left, down) alone is held.
	DirNegative
	// DirPositive means the positive-sense button (right, up) alone is held,
	// or, on the vertical axis, both up and down are held (up wins).
	DirPositive
)

// Hat is the D-pad direction, encoded exactly as the PS4 wire format
// expects it: the eight compass points 0..7 followed by Neutral==8.
type Hat uint8

const (
	HatNorth Hat = iota
	HatNorthEast
	HatEast
	HatSouthEast
	HatSouth
	HatSouthWest
	HatWest
	HatNorthWest
	HatNeutral
)

// CleanDirections resolves raw up/down/left/right button state into a pair
// of SOCD-cleaned directions. Horizontal SOCD (both left and right held)
// resolves to neutral; vertical SOCD (both up and down held) resolves to
// up, matching the reference firmware's "up wins" tie-break.
func CleanDirections(up, down, left, right bool) (horizontal, vertical Direction) {
	switch {
	case left && right:
		horizontal = DirNone
	case left:
		horizontal = DirNegative
	case right:
		horizontal = DirPositive
	default:
		horizontal = DirNone
	}

	switch {
	case up && down:
		vertical = DirPositive
	case up:
		vertical = DirPositive
	case down:
		vertical = DirNegative
	default:
		vertical = DirNone
	}

	return horizontal, vertical
}

// HatFromDirections maps a cleaned (horizontal, vertical) pair onto the Hat
// enum used by the D-pad.
func HatFromDirections(horizontal, vertical Direction) Hat {
	switch {
	case horizontal == DirNone && vertical == DirNone:
		return HatNeutral
	case horizontal == DirPositive && vertical == DirNone:
		return HatEast
	case horizontal == DirPositive && vertical == DirNegative:
		return HatSouthEast
	case horizontal == DirNone && vertical == DirNegative:
		return HatSouth
	case horizontal == DirNegative && vertical == DirNegative:
		return HatSouthWest
	case horizontal == DirNegative && vertical == DirNone:
		return HatWest
	case horizontal == DirNegative && vertical == DirPositive:
		return HatNorthWest
	case horizontal == DirNone && vertical == DirPositive:
		return HatNorth
	default: // horizontal == DirPositive && vertical == DirPositive
		return HatNorthEast
	}
}

// Axis values for a direction routed to a stick, per §4.2: negative is 0,
// neutral is 127, positive is 255. The Y axis is inverted relative to the
// hat's vertical sense (up reads as 0) to match the PS4 report's own stick
// convention.
const (
	AxisMin     uint8 = 0
	AxisNeutral uint8 = 127
	AxisMax     uint8 = 255
)

func axisX(d Direction) uint8 {
	switch d {
	case DirPositive:
		return AxisMax
	case DirNegative:
		return AxisMin
	default:
		return AxisNeutral
	}
}

func axisY(d Direction) uint8 {
	switch d {
	case DirPositive: // up
		return AxisMin
	case DirNegative: // down
		return AxisMax
	default:
		return AxisNeutral
	}
}

// Buttons holds the fourteen boolean button inputs of a PS4 gamepad.
type Buttons struct {
	North, East, South, West bool
	L1, L2, L3               bool
	R1, R2, R3               bool
	Start, Select, Home      bool
	Trackpad                 bool
}

// DeviceInputs is the typed snapshot of full controller state: axes,
// buttons, hat, and the rolling report counter. Axes outside LS carry raw
// potentiometer/trigger readings untouched by SOCD cleaning.
type DeviceInputs struct {
	Counter uint8 // 6-bit rolling counter, wraps at 64

	LeftStickX, LeftStickY   uint8
	RightStickX, RightStickY uint8
	LeftTrigger, RightTrigger uint8

	Hat     Hat
	Buttons Buttons
}

// Raw is the set of directional/mode inputs read straight from GPIO, before
// SOCD cleaning and left-stick-mode routing are applied.
type Raw struct {
	Up, Down, Left, Right bool
	LeftStickMode         bool
}

// Apply cleans the raw directional inputs and writes the hat and left-stick
// axes into d: in left-stick mode the directions drive the axes and the hat
// is Neutral; otherwise they drive the hat and the axes are centred. Every
// other field of d is left untouched. Callers
// populate buttons, triggers, and the right stick separately.
func Apply(d *DeviceInputs, r Raw) {
	horizontal, vertical := CleanDirections(r.Up, r.Down, r.Left, r.Right)

	if r.LeftStickMode {
		d.Hat = HatNeutral
		d.LeftStickX = axisX(horizontal)
		d.LeftStickY = axisY(vertical)
		return
	}

	d.Hat = HatFromDirections(horizontal, vertical)
	d.LeftStickX = AxisNeutral
	d.LeftStickY = AxisNeutral
}

// NextCounter advances the 6-bit rolling counter, wrapping at 64.
func NextCounter(c uint8) uint8 {
	return (c + 1) & 0x3f
}
