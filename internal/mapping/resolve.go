package mapping

import "github.com/sketchatone/strummer/internal/hid"

// Resolve picks the normalized [0,1] input for m.Control out of the current
// tablet frame and the most recently observed strum velocity (used by the
// derived "velocity" control, which falls back to pressure when no strum
// velocity has been observed yet).
func Resolve(m Mapping, f hid.Frame, lastStrumVelocity float64, haveStrumVelocity bool) float64 {
	switch m.Control {
	case ControlPressure:
		return f.Pressure
	case ControlTiltX:
		return NormalizeTilt(f.TiltX)
	case ControlTiltY:
		return NormalizeTilt(f.TiltY)
	case ControlTiltXY:
		return NormalizeTilt(f.TiltXY)
	case ControlXAxis:
		return f.X
	case ControlYAxis:
		return f.Y
	case ControlVelocity:
		if haveStrumVelocity {
			return lastStrumVelocity
		}
		return f.Pressure
	case ControlNone:
		return 0
	default:
		return 0
	}
}
