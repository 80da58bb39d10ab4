package devices

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// CommandError reports a malformed or unsupported bus command. The entity is
// left untouched when one is returned.
type CommandError struct {
	Verb   string
	Reason string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s: %s", e.Verb, e.Reason)
}

// ExecuteCommand applies a bus command to the entity with the given id.
// Commands are a flat two-token wire format: "VERB" or "VERB:p1,p2,...".
// Application is all-or-nothing: parameters are validated before any state
// changes, and last_seen is only touched on success.
func (r *Registry) ExecuteCommand(id, command string) (string, error) {
	rec := r.lookup(id)
	if rec == nil {
		return "", fmt.Errorf("entity %s: %w", id, ErrNotFound)
	}

	verb, params := splitCommand(command)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	e := &rec.entity

	msg, err := r.apply(e, verb, params)
	if err != nil {
		return "", err
	}
	e.LastSeen = r.now()
	r.logger.Info("bus command",
		zap.String("entity", e.ID),
		zap.String("command", command))
	return msg, nil
}

func splitCommand(command string) (verb, params string) {
	if idx := strings.IndexByte(command, ':'); idx >= 0 {
		return command[:idx], command[idx+1:]
	}
	return command, ""
}

func (r *Registry) apply(e *Entity, verb, params string) (string, error) {
	switch verb {
	// Generic lifecycle.
	case "REBOOT":
		e.Status = "REBOOTING"
		return fmt.Sprintf("Entity %s is rebooting.", e.Name), nil
	case "ACTIVATE":
		e.Status = "ACTIVE"
		return fmt.Sprintf("Entity %s activated.", e.Name), nil
	case "POWER_ON":
		e.Status = "ON"
		return fmt.Sprintf("Entity %s powered on.", e.Name), nil
	case "POWER_OFF":
		e.Status = "OFF"
		return fmt.Sprintf("Entity %s powered off.", e.Name), nil
	case "STANDBY":
		e.Status = "STANDBY"
		return fmt.Sprintf("Entity %s in standby mode.", e.Name), nil

	// Robotics.
	case "ARM_MOVE":
		x, y, z, err := parseCoords(params)
		if err != nil {
			return "", &CommandError{Verb: verb, Reason: "requires x,y,z coordinates (e.g. ARM_MOVE:100,50,200)"}
		}
		st := e.robot()
		st.X, st.Y, st.Z = x, y, z
		e.Status = "MOVING"
		return fmt.Sprintf("Robot arm %s moving to (%g, %g, %g)", e.Name, x, y, z), nil
	case "ARM_HOME":
		st := e.robot()
		st.X, st.Y, st.Z = 0, 0, 0
		e.Status = "HOMING"
		return fmt.Sprintf("Robot arm %s returning to home position.", e.Name), nil
	case "GRIP":
		e.robot().GripperOpen = false
		return fmt.Sprintf("Robot %s gripper closed.", e.Name), nil
	case "RELEASE":
		e.robot().GripperOpen = true
		return fmt.Sprintf("Robot %s gripper opened.", e.Name), nil
	case "SET_SPEED":
		speed, err := strconv.ParseUint(params, 10, 8)
		if err != nil {
			return "", &CommandError{Verb: verb, Reason: "requires a number 0-100 (e.g. SET_SPEED:50)"}
		}
		if speed > 100 {
			speed = 100
		}
		e.robot().SpeedPercent = uint8(speed)
		return fmt.Sprintf("Robot %s speed set to %d%%.", e.Name, speed), nil

	// Aerial / ground.
	case "TAKEOFF":
		e.Status = "AIRBORNE"
		e.robot().Z = defaultAltitude
		return fmt.Sprintf("Drone %s has taken off.", e.Name), nil
	case "LAND":
		e.Status = "LANDED"
		e.robot().Z = 0
		return fmt.Sprintf("Drone %s has landed.", e.Name), nil
	case "DRIVE":
		e.Status = "DRIVING"
		return fmt.Sprintf("Rover %s is now driving.", e.Name), nil

	// Sensing.
	case "SENSE":
		if len(e.Telemetry) == 0 {
			return fmt.Sprintf("No telemetry data for %s.", e.Name), nil
		}
		parts := make([]string, 0, len(e.Telemetry))
		for _, t := range e.Telemetry {
			parts = append(parts, fmt.Sprintf("%s: %g %s", t.Metric, t.Value, t.Unit))
		}
		return fmt.Sprintf("Telemetry for %s: %s", e.Name, strings.Join(parts, ", ")), nil
	case "CALIBRATE":
		e.Status = "CALIBRATING"
		return fmt.Sprintf("Sensor %s calibration initiated.", e.Name), nil

	default:
		return "", &CommandError{Verb: verb, Reason: "unknown command"}
	}
}

const defaultAltitude = 10.0

// robot lazily creates the robot state for verbs that need one.
func (e *Entity) robot() *RobotState {
	if e.Robot == nil {
		e.Robot = &RobotState{}
	}
	return e.Robot
}

func parseCoords(params string) (x, y, z float64, err error) {
	parts := strings.Split(params, ",")
	if len(parts) < 3 {
		return 0, 0, 0, fmt.Errorf("want 3 coordinates, got %d", len(parts))
	}
	x, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, 0, err
	}
	y, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, 0, err
	}
	z, err = strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil {
		return 0, 0, 0, err
	}
	return x, y, z, nil
}
