// Package devices implements the in-memory registry of addressable entities
// and the command state machine that agents and skills drive over the bus.
package devices

import "time"

// EntityType classifies an entity on the bus.
type EntityType string

const (
	TypeSensor   EntityType = "sensor"
	TypeActuator EntityType = "actuator"
	TypeGrid     EntityType = "grid"
	TypeRobot    EntityType = "robot"
	TypeCamera   EntityType = "camera"
	TypeGateway  EntityType = "gateway"
	TypeRover    EntityType = "rover"
	TypeDrone    EntityType = "drone"
	TypeUnknown  EntityType = "unknown"
)

// TelemetryReading is a single sampled metric.
type TelemetryReading struct {
	Timestamp time.Time `json:"timestamp"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
}

// RobotState tracks the pose of robot-like entities.
type RobotState struct {
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Z            float64 `json:"z"`
	GripperOpen  bool    `json:"gripper_open"`
	SpeedPercent uint8   `json:"speed_percent"`
}

// Entity is one addressable device. ID is immutable after registration;
// updates are whole-entity upserts keyed by ID.
type Entity struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	Type           EntityType         `json:"entity_type"`
	SignalStrength uint8              `json:"signal_strength"`
	Status         string             `json:"status"`
	LastSeen       time.Time          `json:"last_seen"`
	Capabilities   []string           `json:"capabilities"`
	Telemetry      []TelemetryReading `json:"telemetry,omitempty"`
	MaxTelemetry   int                `json:"max_telemetry_size"`
	Robot          *RobotState        `json:"robot_state,omitempty"`
}

// DefaultMaxTelemetry bounds an entity's telemetry ring when the entity does
// not set its own limit.
const DefaultMaxTelemetry = 100

// clone returns a deep copy so callers never alias registry-owned memory.
func (e Entity) clone() Entity {
	out := e
	out.Capabilities = append([]string(nil), e.Capabilities...)
	out.Telemetry = append([]TelemetryReading(nil), e.Telemetry...)
	if e.Robot != nil {
		r := *e.Robot
		out.Robot = &r
	}
	return out
}
