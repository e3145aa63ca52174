package sensor

import (
	"math"
	"testing"
)

func TestNormalizeUnit(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", "degC"},
		{"degC", "degC"},
		{"celsius", "celsius"},
		{"degF", "degF"},
		{"fahrenheit", "fahrenheit"},
		{"kelvin", "degC"},
		{"degc", "degC"}, // aliases are case sensitive
	}
	for _, c := range cases {
		if got := NormalizeUnit(c.in); got != c.want {
			t.Errorf("NormalizeUnit(%q): got %q, want %q", c.in, got, c.want)
		}
	}
}

func TestConvert(t *testing.T) {
	if got := convert(0, "degF"); got != 32 {
		t.Errorf("convert(0, degF): got %v, want 32", got)
	}
	if got := convert(100, "degF"); got != 212 {
		t.Errorf("convert(100, degF): got %v, want 212", got)
	}
	if got := convert(-18, "degC"); got != -18 {
		t.Errorf("convert(-18, degC): got %v, want unchanged", got)
	}
	if got := convert(math.NaN(), "degF"); !math.IsNaN(got) {
		t.Errorf("convert(NaN, degF): got %v, want NaN", got)
	}
}

func TestUnitLabel(t *testing.T) {
	if UnitLabel("degF") != "F" || UnitLabel("degC") != "C" || UnitLabel("") != "C" {
		t.Error("UnitLabel mapping wrong")
	}
}

func TestParseKey(t *testing.T) {
	ch, stype, err := ParseKey("sensor.3.sht30")
	if err != nil || ch != 3 || stype != "sht30" {
		t.Errorf("ParseKey(sensor.3.sht30): got %d %q %v", ch, stype, err)
	}

	ch, stype, err = ParseKey("channel0.sht31d")
	if err != nil || ch != 0 || stype != "sht31d" {
		t.Errorf("ParseKey(channel0.sht31d): got %d %q %v", ch, stype, err)
	}

	for _, bad := range []string{"display", "sensor.x.sht30", "sensor.1", "channelX.sht30"} {
		if _, _, err := ParseKey(bad); err == nil {
			t.Errorf("ParseKey(%q): expected error", bad)
		}
	}
}
