package mavlink

import "github.com/roman-kulish/althold/internal/vehicle"

// ArduCopter custom_mode numbers
var copterModes = map[vehicle.Mode]uint32{
	vehicle.ModeStabilize: 0,
	vehicle.ModeAcro:      1,
	vehicle.ModeAltHold:   2,
	vehicle.ModeAuto:      3,
	vehicle.ModeGuided:    4,
	vehicle.ModeLoiter:    5,
	vehicle.ModeRTL:       6,
	vehicle.ModeCircle:    7,
	vehicle.ModeLand:      9,
	vehicle.ModePosHold:   16,
	vehicle.ModeBrake:     17,
}

func customMode(m vehicle.Mode) (uint32, bool) {
	v, ok := copterModes[m]
	return v, ok
}

func modeName(custom uint32) vehicle.Mode {
	for m, v := range copterModes {
		if v == custom {
			return m
		}
	}
	return ""
}
