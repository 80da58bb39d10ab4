package devices

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewEmpty(zap.NewNop())
}

func registerRobot(r *Registry, id string) {
	r.Register(Entity{
		ID:           id,
		Name:         "Test Arm",
		Type:         TypeRobot,
		Status:       "IDLE",
		MaxTelemetry: 10,
		Robot:        &RobotState{},
	})
}

func TestRegistryUpsertKeyedByID(t *testing.T) {
	r := newTestRegistry(t)
	r.Register(Entity{ID: "E-1", Name: "first", Type: TypeSensor})
	r.Register(Entity{ID: "E-1", Name: "second", Type: TypeActuator})

	got, ok := r.Get("E-1")
	require.True(t, ok)
	assert.Equal(t, "second", got.Name)
	assert.Equal(t, TypeActuator, got.Type)
	assert.Len(t, r.All(), 1)
}

func TestGetReturnsDetachedCopy(t *testing.T) {
	r := newTestRegistry(t)
	registerRobot(r, "R-1")

	got, ok := r.Get("R-1")
	require.True(t, ok)
	got.Robot.X = 99
	got.Status = "TAMPERED"

	again, _ := r.Get("R-1")
	assert.Equal(t, 0.0, again.Robot.X)
	assert.Equal(t, "IDLE", again.Status)
}

func TestExecuteCommandLifecycleVerbs(t *testing.T) {
	cases := []struct {
		command    string
		wantStatus string
	}{
		{"REBOOT", "REBOOTING"},
		{"ACTIVATE", "ACTIVE"},
		{"POWER_ON", "ON"},
		{"POWER_OFF", "OFF"},
		{"STANDBY", "STANDBY"},
		{"CALIBRATE", "CALIBRATING"},
		{"DRIVE", "DRIVING"},
	}
	for _, tc := range cases {
		t.Run(tc.command, func(t *testing.T) {
			r := newTestRegistry(t)
			r.Register(Entity{ID: "E-1", Name: "unit", Type: TypeActuator})

			msg, err := r.ExecuteCommand("E-1", tc.command)
			require.NoError(t, err)
			assert.NotEmpty(t, msg)

			got, _ := r.Get("E-1")
			assert.Equal(t, tc.wantStatus, got.Status)
			assert.False(t, got.LastSeen.IsZero(), "last_seen must be set on success")
		})
	}
}

func TestExecuteCommandArmMove(t *testing.T) {
	r := newTestRegistry(t)
	registerRobot(r, "R-1")

	_, err := r.ExecuteCommand("R-1", "ARM_MOVE:10,20,30")
	require.NoError(t, err)

	got, _ := r.Get("R-1")
	assert.Equal(t, "MOVING", got.Status)
	assert.Equal(t, 10.0, got.Robot.X)
	assert.Equal(t, 20.0, got.Robot.Y)
	assert.Equal(t, 30.0, got.Robot.Z)
}

func TestExecuteCommandArmMoveBadParams(t *testing.T) {
	r := newTestRegistry(t)
	registerRobot(r, "R-1")
	before, _ := r.Get("R-1")

	for _, cmd := range []string{"ARM_MOVE", "ARM_MOVE:abc,1,2", "ARM_MOVE:1,2"} {
		_, err := r.ExecuteCommand("R-1", cmd)
		var cmdErr *CommandError
		require.ErrorAs(t, err, &cmdErr, "command %q", cmd)
	}

	after, _ := r.Get("R-1")
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("entity mutated by failed command (-before +after):\n%s", diff)
	}
}

func TestExecuteCommandUnknownVerbIsNoMutation(t *testing.T) {
	r := newTestRegistry(t)
	registerRobot(r, "R-1")
	require.NoError(t, r.PushTelemetry("R-1", TelemetryReading{Metric: "temp", Value: 1, Unit: "C"}))
	before, _ := r.Get("R-1")

	_, err := r.ExecuteCommand("R-1", "SELF_DESTRUCT")
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)

	after, _ := r.Get("R-1")
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("entity mutated by unknown verb (-before +after):\n%s", diff)
	}
}

func TestExecuteCommandUnknownEntity(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.ExecuteCommand("NOPE", "REBOOT")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGripReleaseLazilyCreateRobotState(t *testing.T) {
	r := newTestRegistry(t)
	r.Register(Entity{ID: "A-1", Name: "claw", Type: TypeActuator})

	_, err := r.ExecuteCommand("A-1", "GRIP")
	require.NoError(t, err)
	got, _ := r.Get("A-1")
	require.NotNil(t, got.Robot)
	assert.False(t, got.Robot.GripperOpen)

	_, err = r.ExecuteCommand("A-1", "RELEASE")
	require.NoError(t, err)
	got, _ = r.Get("A-1")
	assert.True(t, got.Robot.GripperOpen)
}

func TestSetSpeedClamps(t *testing.T) {
	r := newTestRegistry(t)
	registerRobot(r, "R-1")

	_, err := r.ExecuteCommand("R-1", "SET_SPEED:250")
	require.NoError(t, err)
	got, _ := r.Get("R-1")
	assert.Equal(t, uint8(100), got.Robot.SpeedPercent)

	_, err = r.ExecuteCommand("R-1", "SET_SPEED:fast")
	var cmdErr *CommandError
	assert.ErrorAs(t, err, &cmdErr)
}

func TestTakeoffAndLand(t *testing.T) {
	r := New(zap.NewNop())

	_, err := r.ExecuteCommand("ARK-DRONE-01", "TAKEOFF")
	require.NoError(t, err)
	got, _ := r.Get("ARK-DRONE-01")
	assert.Equal(t, "AIRBORNE", got.Status)
	assert.Greater(t, got.Robot.Z, 0.0)

	_, err = r.ExecuteCommand("ARK-DRONE-01", "LAND")
	require.NoError(t, err)
	got, _ = r.Get("ARK-DRONE-01")
	assert.Equal(t, "LANDED", got.Status)
	assert.Equal(t, 0.0, got.Robot.Z)
}

func TestSenseSummarizesTelemetry(t *testing.T) {
	r := New(zap.NewNop())
	msg, err := r.ExecuteCommand("ARK-SENSOR-01", "SENSE")
	require.NoError(t, err)
	assert.Contains(t, msg, "temperature: 22.5 C")
	assert.Contains(t, msg, "humidity: 45 %")
}

func TestPushTelemetryRingEvictsOldestFirst(t *testing.T) {
	r := newTestRegistry(t)
	r.Register(Entity{ID: "S-1", Name: "probe", Type: TypeSensor, MaxTelemetry: 3})

	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		err := r.PushTelemetry("S-1", TelemetryReading{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Metric:    "temp",
			Value:     float64(i),
			Unit:      "C",
		})
		require.NoError(t, err)
	}

	got, _ := r.Get("S-1")
	require.Len(t, got.Telemetry, 3)
	assert.Equal(t, 2.0, got.Telemetry[0].Value, "oldest surviving entry")
	assert.Equal(t, 4.0, got.Telemetry[2].Value, "newest entry")
}

func TestReadSensorLatestWins(t *testing.T) {
	r := newTestRegistry(t)
	r.Register(Entity{ID: "S-1", Name: "probe", Type: TypeSensor, MaxTelemetry: 10})

	require.NoError(t, r.PushTelemetry("S-1", TelemetryReading{Metric: "temp", Value: 1, Unit: "C"}))
	require.NoError(t, r.PushTelemetry("S-1", TelemetryReading{Metric: "humidity", Value: 50, Unit: "%"}))
	require.NoError(t, r.PushTelemetry("S-1", TelemetryReading{Metric: "temp", Value: 2, Unit: "C"}))

	reading, err := r.ReadSensor("S-1", "temp")
	require.NoError(t, err)
	assert.Equal(t, 2.0, reading.Value)

	_, err = r.ReadSensor("S-1", "pressure")
	assert.Error(t, err)

	_, err = r.ReadSensor("NOPE", "temp")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestByTypeFiltersAndOrders(t *testing.T) {
	r := New(zap.NewNop())
	r.Register(Entity{ID: "ARK-SENSOR-02", Name: "Aux Sensor", Type: TypeSensor, Status: "online"})

	sensors := r.ByType(TypeSensor)
	require.Len(t, sensors, 2)
	assert.Equal(t, "ARK-SENSOR-01", sensors[0].ID)
	assert.Equal(t, "ARK-SENSOR-02", sensors[1].ID)

	assert.Empty(t, r.ByType(EntityType("nonexistent")))
}

func TestDiscoverIsIdempotent(t *testing.T) {
	r := New(zap.NewNop())
	first := r.Discover()
	assert.Len(t, first, 2)
	second := r.Discover()
	assert.Empty(t, second)

	_, ok := r.Get("ARK-ROBOT-01")
	assert.True(t, ok)
	_, ok = r.Get("ARK-CAM-01")
	assert.True(t, ok)
}

func TestConcurrentCommandsOnDistinctEntities(t *testing.T) {
	r := newTestRegistry(t)
	const n = 8
	for i := 0; i < n; i++ {
		r.Register(Entity{ID: fmt.Sprintf("E-%d", i), Name: "unit", Type: TypeActuator})
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		for j := 0; j < 50; j++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := r.ExecuteCommand(fmt.Sprintf("E-%d", i), "ACTIVATE")
				assert.NoError(t, err)
			}(i)
		}
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		got, _ := r.Get(fmt.Sprintf("E-%d", i))
		assert.Equal(t, "ACTIVE", got.Status)
	}
}
