package sender

import (
	"fmt"
	"math"
)

// muteVolumeDB is the literal value AirPlay uses to mean "muted",
// per spec.md 8 scenario 5.
const muteVolumeDB = -144.0

// VolumeToDB converts a linear [0, 1] volume fraction to the
// attenuation-in-dB AirPlay's SET_PARAMETER volume body carries:
// 20*log10(volume). A volume of 0 (or below) is reported as the literal
// mute value, not -Inf.
func VolumeToDB(volume float64) float64 {
	if volume <= 0 {
		return muteVolumeDB
	}
	if volume > 1 {
		volume = 1
	}
	return 20 * math.Log10(volume)
}

// VolumeParameterBody renders the text/parameters SET_PARAMETER body for
// a volume change: "volume: -6.0206\r\n", formatted to match spec.md 8
// scenario 5's literal values (four decimal places).
func VolumeParameterBody(volume float64) string {
	return fmt.Sprintf("volume: %.4f\r\n", VolumeToDB(volume))
}

// MuteParameterBody renders the SET_PARAMETER body for mute(): the
// literal "volume: -144.000000" spec.md 8 scenario 5 requires (six
// decimal places, distinct from the four VolumeParameterBody uses).
func MuteParameterBody() string {
	return fmt.Sprintf("volume: %.6f\r\n", muteVolumeDB)
}
