package protocol

import (
	"math"
	"strconv"
	"strings"
)

// MoveCommand asks the backend to drive the agent along (X, Y).
type MoveCommand struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation float64 `json:"rotation"`
}

// Sensor form field names, in the order the form presents them.
const (
	FieldNumBeams = "num_beams"
	FieldMaxRange = "max_range"
	FieldNoiseStd = "noise_std"
	FieldFOV      = "fov"
)

// SensorFields lists the sensor form fields in display order.
var SensorFields = []string{FieldNumBeams, FieldMaxRange, FieldNoiseStd, FieldFOV}

// SensorCommand requests a lidar scan. A nil field is absent: it is omitted
// from the request so the backend applies its own default.
type SensorCommand struct {
	NumBeams *float64 `json:"num_beams,omitempty"`
	MaxRange *float64 `json:"max_range,omitempty"`
	NoiseStd *float64 `json:"noise_std,omitempty"`
	FOV      *float64 `json:"fov,omitempty"`
}

// DefaultSensorForm returns the form's initial values.
func DefaultSensorForm() map[string]string {
	return map[string]string{
		FieldNumBeams: "60",
		FieldMaxRange: "1000.0",
		FieldNoiseStd: "0",
		FieldFOV:      "6.28",
	}
}

// ParseSensorForm converts raw form input into a command. Entries that are
// missing, non-numeric or non-finite become absent rather than rejecting the
// whole command.
func ParseSensorForm(values map[string]string) SensorCommand {
	return SensorCommand{
		NumBeams: parseField(values[FieldNumBeams]),
		MaxRange: parseField(values[FieldMaxRange]),
		NoiseStd: parseField(values[FieldNoiseStd]),
		FOV:      parseField(values[FieldFOV]),
	}
}

func parseField(s string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// StepCommand advances the simulation. NumSteps of zero sends an empty
// payload and lets the backend step once.
type StepCommand struct {
	NumSteps int `json:"num_steps,omitempty"`
}
