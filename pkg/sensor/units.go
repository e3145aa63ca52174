package sensor

import (
	"log"
	"math"
)

// DefaultUnit is used when the configured unit is missing or not part
// of the closed alias sets below.
const DefaultUnit = "degC"

var degF = map[string]bool{
	"degree_Fahrenheit": true,
	"fahrenheit":        true,
	"degF":              true,
	"degreeF":           true,
}

var degC = map[string]bool{
	"degree_Celsius": true,
	"celsius":        true,
	"degC":           true,
	"degreeC":        true,
}

// NormalizeUnit maps u onto the closed Celsius/Fahrenheit alias sets,
// falling back to Celsius with an error log on unrecognized input.
func NormalizeUnit(u string) string {
	if u == "" {
		return DefaultUnit
	}
	if degC[u] || degF[u] {
		return u
	}
	log.Printf("Unsupported unit '%s', defaulting to '%s'", u, DefaultUnit)
	return DefaultUnit
}

// IsFahrenheit reports whether u belongs to the Fahrenheit alias set.
func IsFahrenheit(u string) bool {
	return degF[u]
}

// UnitLabel returns the single-letter unit for display and alerts.
func UnitLabel(u string) string {
	if IsFahrenheit(u) {
		return "F"
	}
	return "C"
}

// convert applies the configured unit to a raw Celsius value. NaN is
// returned untouched: failed reads are never converted.
func convert(celsius float64, unit string) float64 {
	if math.IsNaN(celsius) || !IsFahrenheit(unit) {
		return celsius
	}
	return celsius*9/5 + 32
}
