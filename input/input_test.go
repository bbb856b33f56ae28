package input

import "testing"

func TestSOCDHorizontalNeutral(t *testing.T) {
	h, _ := CleanDirections(false, false, true, true)
	if h != DirNone {
		t.Fatalf("horizontal = %v, want DirNone", h)
	}
}

func TestSOCDVerticalUpWins(t *testing.T) {
	_, v := CleanDirections(true, true, false, false)
	if v != DirPositive {
		t.Fatalf("vertical = %v, want DirPositive (up wins)", v)
	}
}

func TestSOCDScenario6(t *testing.T) {
	// L=1, R=1, U=1, D=0 must produce hat North and LS-X=127 (§8 scenario 6).
	horizontal, vertical := CleanDirections(true, false, true, true)
	hat := HatFromDirections(horizontal, vertical)

	if hat != HatNorth {
		t.Fatalf("hat = %v, want HatNorth", hat)
	}

	if axisX(horizontal) != 127 {
		t.Fatalf("LS-X = %d, want 127", axisX(horizontal))
	}
}

func TestHatFromDirectionsAllCombinations(t *testing.T) {
	cases := []struct {
		h, v Direction
		want Hat
	}{
		{DirNone, DirNone, HatNeutral},
		{DirPositive, DirNone, HatEast},
		{DirPositive, DirNegative, HatSouthEast},
		{DirNone, DirNegative, HatSouth},
		{DirNegative, DirNegative, HatSouthWest},
		{DirNegative, DirNone, HatWest},
		{DirNegative, DirPositive, HatNorthWest},
		{DirNone, DirPositive, HatNorth},
		{DirPositive, DirPositive, HatNorthEast},
	}

	for _, c := range cases {
		if got := HatFromDirections(c.h, c.v); got != c.want {
			t.Errorf("HatFromDirections(%v, %v) = %v, want %v", c.h, c.v, got, c.want)
		}
	}
}

func TestApplyLeftStickMode(t *testing.T) {
	var d DeviceInputs

	Apply(&d, Raw{Left: true, LeftStickMode: true})

	if d.Hat != HatNeutral {
		t.Fatalf("Hat = %v, want HatNeutral in left-stick mode", d.Hat)
	}
	if d.LeftStickX != AxisMin {
		t.Fatalf("LeftStickX = %d, want %d", d.LeftStickX, AxisMin)
	}
	if d.LeftStickY != AxisNeutral {
		t.Fatalf("LeftStickY = %d, want %d", d.LeftStickY, AxisNeutral)
	}
}

func TestApplyDpadMode(t *testing.T) {
	var d DeviceInputs
	d.LeftStickX, d.LeftStickY = 200, 200

	Apply(&d, Raw{Up: true})

	if d.Hat != HatNorth {
		t.Fatalf("Hat = %v, want HatNorth", d.Hat)
	}
	if d.LeftStickX != AxisNeutral || d.LeftStickY != AxisNeutral {
		t.Fatalf("stick axes = (%d, %d), want neutral in D-pad mode", d.LeftStickX, d.LeftStickY)
	}
}

func TestNextCounterWraps(t *testing.T) {
	c := uint8(63)
	c = NextCounter(c)
	if c != 0 {
		t.Fatalf("NextCounter(63) = %d, want 0", c)
	}
}
