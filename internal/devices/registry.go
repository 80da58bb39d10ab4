package devices

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound reports a command or telemetry operation against an unknown
// entity id.
var ErrNotFound = errors.New("entity not found")

// Registry is the single owned store of entities. Membership is guarded by
// an RWMutex; each entity carries its own lock so commands on distinct
// entities never serialize against each other.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*record
	logger  *zap.Logger
	now     func() time.Time
}

type record struct {
	mu     sync.Mutex
	entity Entity
}

// NewEmpty creates a registry with no entities.
func NewEmpty(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		records: make(map[string]*record),
		logger:  logger,
		now:     time.Now,
	}
}

// New creates a registry seeded with the default bus entities.
func New(logger *zap.Logger) *Registry {
	r := NewEmpty(logger)
	r.seedDefaults()
	return r
}

// Register upserts an entity, keyed by its ID. The stored copy is detached
// from the caller's value.
func (r *Registry) Register(e Entity) {
	if e.MaxTelemetry <= 0 {
		e.MaxTelemetry = DefaultMaxTelemetry
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[e.ID]; ok {
		rec.mu.Lock()
		rec.entity = e.clone()
		rec.mu.Unlock()
		return
	}
	r.records[e.ID] = &record{entity: e.clone()}
}

// Get returns a copy of the entity with the given id.
func (r *Registry) Get(id string) (Entity, bool) {
	rec := r.lookup(id)
	if rec == nil {
		return Entity{}, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.entity.clone(), true
}

// All returns copies of every entity, ordered by id for stable output.
func (r *Registry) All() []Entity {
	r.mu.RLock()
	recs := make([]*record, 0, len(r.records))
	for _, rec := range r.records {
		recs = append(recs, rec)
	}
	r.mu.RUnlock()

	out := make([]Entity, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		out = append(out, rec.entity.clone())
		rec.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ByType returns copies of every entity of the given type, ordered by id.
func (r *Registry) ByType(t EntityType) []Entity {
	all := r.All()
	out := all[:0]
	for _, e := range all {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// ReadSensor returns the most recent telemetry reading for metric on the
// given entity.
func (r *Registry) ReadSensor(id, metric string) (TelemetryReading, error) {
	rec := r.lookup(id)
	if rec == nil {
		return TelemetryReading{}, fmt.Errorf("entity %s: %w", id, ErrNotFound)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for i := len(rec.entity.Telemetry) - 1; i >= 0; i-- {
		if rec.entity.Telemetry[i].Metric == metric {
			return rec.entity.Telemetry[i], nil
		}
	}
	return TelemetryReading{}, fmt.Errorf("no %s readings for %s", metric, id)
}

// PushTelemetry appends a reading and updates last_seen. When the ring
// exceeds the entity's maximum, the oldest entries are evicted first.
func (r *Registry) PushTelemetry(id string, reading TelemetryReading) error {
	rec := r.lookup(id)
	if rec == nil {
		return fmt.Errorf("entity %s: %w", id, ErrNotFound)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	e := &rec.entity
	e.LastSeen = r.now()
	e.Telemetry = append(e.Telemetry, reading)
	if over := len(e.Telemetry) - e.MaxTelemetry; over > 0 {
		e.Telemetry = append(e.Telemetry[:0], e.Telemetry[over:]...)
	}
	return nil
}

// Discover runs a discovery pulse over the bus, registering any newly seen
// entities. Returns what was discovered on this pulse.
func (r *Registry) Discover() []Entity {
	r.logger.Info("discovery pulse initiated")
	discovered := make([]Entity, 0, 2)
	for _, e := range discoverable() {
		if _, ok := r.Get(e.ID); ok {
			continue
		}
		r.Register(e)
		r.logger.Info("discovered entity", zap.String("id", e.ID), zap.String("name", e.Name))
		discovered = append(discovered, e)
	}
	return discovered
}

func (r *Registry) lookup(id string) *record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.records[id]
}

func (r *Registry) seedDefaults() {
	now := r.now()
	r.Register(Entity{
		ID:             "ARK-01",
		Name:           "ONE Natural Energy Grid",
		Type:           TypeGrid,
		SignalStrength: 98,
		Status:         "STABLE",
		LastSeen:       now,
		Capabilities:   []string{"power_dist", "thermal_monitor"},
		Telemetry: []TelemetryReading{
			{Timestamp: now, Metric: "power_output", Value: 1200.5, Unit: "kW"},
		},
		MaxTelemetry: 50,
	})
	r.Register(Entity{
		ID:             "ARK-SENSOR-01",
		Name:           "Ambient Temperature Sensor",
		Type:           TypeSensor,
		SignalStrength: 95,
		Status:         "ACTIVE",
		LastSeen:       now,
		Capabilities:   []string{"temperature", "humidity"},
		Telemetry: []TelemetryReading{
			{Timestamp: now, Metric: "temperature", Value: 22.5, Unit: "C"},
			{Timestamp: now, Metric: "humidity", Value: 45.0, Unit: "%"},
		},
		MaxTelemetry: 100,
	})
	r.Register(Entity{
		ID:             "ARK-DRONE-01",
		Name:           "Omega Recon Drone",
		Type:           TypeDrone,
		SignalStrength: 100,
		Status:         "LANDED",
		LastSeen:       now,
		Capabilities:   []string{"takeoff", "land", "video_feed"},
		MaxTelemetry:   200,
		Robot:          &RobotState{},
	})
}

func discoverable() []Entity {
	return []Entity{
		{
			ID:             "ARK-ROBOT-01",
			Name:           "Omega Robotic Arm v1",
			Type:           TypeRobot,
			SignalStrength: 100,
			Status:         "IDLE",
			Capabilities:   []string{"arm_move", "grip", "vision_track"},
			MaxTelemetry:   100,
			Robot:          &RobotState{},
		},
		{
			ID:             "ARK-CAM-01",
			Name:           "Sovereign Vision Camera",
			Type:           TypeCamera,
			SignalStrength: 92,
			Status:         "STREAMING",
			Capabilities:   []string{"capture", "stream", "object_detect"},
			MaxTelemetry:   100,
		},
	}
}
