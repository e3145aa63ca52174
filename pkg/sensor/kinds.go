package sensor

// Bus addresses of the supported sensor kinds. Discovery resolves the
// type token from the settings key through this closed set; unknown
// tokens are a configuration fault for that entry only.
var kinds = map[string]uint16{
	"sht30":  0x44,
	"sht31d": 0x44,
	"sht85":  0x44,
}

// KindAddress returns the bus address for a sensor type token.
func KindAddress(stype string) (uint16, bool) {
	addr, ok := kinds[stype]
	return addr, ok
}
