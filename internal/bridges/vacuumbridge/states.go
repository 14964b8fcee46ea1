package vacuumbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-vacuumzones/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-vacuumzones/internal/vacuum"
)

// stateWriteTimeout bounds the history write of one transition.
const stateWriteTimeout = 5 * time.Second

// StateTelemetry stores master state transitions in a time-series database.
type StateTelemetry interface {
	WriteMasterState(master, status, raw string)
}

// RoomLister returns the virtual rooms of a master.
// Satisfied by *vacuum.RoomSet.
type RoomLister interface {
	ListByMaster(master vacuum.MasterID) []*vacuum.RoomControl
}

// StateEvent is broadcast on vacuum.ChannelState when a master's coarse
// status changes.
type StateEvent struct {
	MasterID vacuum.MasterID `json:"master_id"`
	Status   vacuum.Status   `json:"status"`
	Previous vacuum.Status   `json:"previous,omitempty"`
	Raw      string          `json:"raw,omitempty"`
	Activity vacuum.Activity `json:"activity"`
}

// StateCacheOptions holds the collaborators of a StateCache. Everything
// except MQTTClient is optional.
type StateCacheOptions struct {
	MQTTClient MQTTClient
	History    vacuum.StateHistoryRepository
	Telemetry  StateTelemetry
	Events     vacuum.Broadcaster
	Rooms      RoomLister
	Logger     Logger

	// MaxAge bounds how old the newer of a master's last state report and
	// the bridge's last heartbeat may be before the state is treated as
	// unresolved. Zero disables the bound.
	MaxAge time.Duration
}

// StateCache keeps the last retained state of every master and implements
// vacuum.StateSource.
//
// Retained state is redelivered on every (re)subscribe, so a read after a
// reconnect always sees the bridge's latest report.
//
// Thread Safety: All methods are safe for concurrent use.
type StateCache struct {
	mqtt      MQTTClient
	history   vacuum.StateHistoryRepository
	telemetry StateTelemetry
	events    vacuum.Broadcaster
	logger    Logger
	maxAge    time.Duration
	now       func() time.Time

	roomsMu sync.RWMutex
	rooms   RoomLister

	mu     sync.RWMutex
	states map[vacuum.MasterID]vacuum.MasterState

	// Bridge availability from graylogic/health/vacuum. A bridge that
	// never publishes health is assumed online.
	health    HealthStatus
	heartbeat time.Time
}

// NewStateCache creates an empty cache.
func NewStateCache(opts StateCacheOptions) *StateCache {
	c := &StateCache{
		mqtt:      opts.MQTTClient,
		history:   opts.History,
		telemetry: opts.Telemetry,
		events:    opts.Events,
		rooms:     opts.Rooms,
		logger:    opts.Logger,
		maxAge:    opts.MaxAge,
		now:       time.Now,
		states:    make(map[vacuum.MasterID]vacuum.MasterState),
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	return c
}

// SetRooms sets the room lister used to republish room states.
func (c *StateCache) SetRooms(rooms RoomLister) {
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()
	c.rooms = rooms
}

// MasterState returns the cached state of master. It is a memory read
// and ignores ctx cancellation.
//
// Masters the bridge has not reported yield ErrUnresolvedMaster, as do all
// masters while the bridge reports itself offline and states whose last
// sign of life is older than MaxAge.
func (c *StateCache) MasterState(_ context.Context, master vacuum.MasterID) (vacuum.MasterState, error) {
	c.mu.RLock()
	state, ok := c.states[master]
	health, heartbeat := c.health, c.heartbeat
	c.mu.RUnlock()

	if !ok {
		return vacuum.MasterState{}, fmt.Errorf("%w: no state reported for %s", vacuum.ErrUnresolvedMaster, master)
	}
	if !health.reachable() {
		return vacuum.MasterState{}, fmt.Errorf("%w: vacuum bridge is %s", vacuum.ErrUnresolvedMaster, health)
	}
	if c.maxAge > 0 {
		seen := state.UpdatedAt
		if heartbeat.After(seen) {
			seen = heartbeat
		}
		if age := c.now().Sub(seen); age > c.maxAge {
			return vacuum.MasterState{}, fmt.Errorf("%w: state of %s is %s old", vacuum.ErrUnresolvedMaster, master, age.Round(time.Second))
		}
	}
	return state, nil
}

// BridgeHealth returns the last reported bridge status and heartbeat time.
// The status is empty until the bridge publishes health.
func (c *StateCache) BridgeHealth() (HealthStatus, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.health, c.heartbeat
}

// HandleHealth processes a message on graylogic/health/vacuum.
func (c *StateCache) HandleHealth(_ string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var msg HealthMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: bridge health: %w", ErrInvalidMessage, err)
	}

	c.mu.Lock()
	previous := c.health
	c.health = msg.Status
	if msg.Status.reachable() {
		// A retained heartbeat replayed on reconnect keeps its original
		// timestamp, so the older of that and receipt time is kept.
		c.heartbeat = c.now().UTC()
		if !msg.Timestamp.IsZero() && msg.Timestamp.Before(c.heartbeat) {
			c.heartbeat = msg.Timestamp.UTC()
		}
	}
	c.mu.Unlock()

	if previous != msg.Status {
		c.logger.Info("vacuum bridge health changed", "status", msg.Status, "previous", previous)
	}
	return nil
}

// Snapshot returns the cached state of every reported master.
func (c *StateCache) Snapshot() map[vacuum.MasterID]vacuum.MasterState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[vacuum.MasterID]vacuum.MasterState, len(c.states))
	for id, s := range c.states {
		out[id] = s
	}
	return out
}

// HandleState processes a message on graylogic/state/vacuum/{master}.
// An empty payload (a cleared retained message) forgets the master.
func (c *StateCache) HandleState(topic string, payload []byte) error {
	id, ok := parseVacuumTopic(topic, mqtt.CategoryState)
	if !ok {
		return nil
	}
	master := vacuum.MasterID(id)

	if len(payload) == 0 {
		c.mu.Lock()
		delete(c.states, master)
		c.mu.Unlock()
		c.logger.Info("master state cleared", "master_id", master)
		return nil
	}

	var msg StateMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: state for %s: %w", ErrInvalidMessage, master, err)
	}

	state := decodeState(msg.State)
	state.UpdatedAt = msg.Timestamp
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = c.now()
	}
	state.UpdatedAt = state.UpdatedAt.UTC()

	c.mu.Lock()
	prev, seen := c.states[master]
	c.states[master] = state
	c.mu.Unlock()

	if seen && prev.Status == state.Status {
		return nil
	}
	c.transition(master, prev.Status, state)
	return nil
}

// decodeState maps a bridge state body onto a coarse status.
func decodeState(s VacuumState) vacuum.MasterState {
	switch {
	case s.Status != "":
		return vacuum.MasterState{Status: vacuum.ParseStatus(s.Status), Raw: s.Status}
	case s.StateCode != nil:
		return vacuum.MasterState{Status: vacuum.StatusFromCode(*s.StateCode), Raw: vacuum.StateName(*s.StateCode)}
	default:
		return vacuum.MasterState{Status: vacuum.StatusUnknown}
	}
}

func (c *StateCache) transition(master vacuum.MasterID, previous vacuum.Status, state vacuum.MasterState) {
	c.logger.Info("master state changed",
		"master_id", master,
		"status", state.Status,
		"previous", previous,
		"raw", state.Raw,
	)

	if c.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), stateWriteTimeout)
		err := c.history.RecordTransition(ctx, vacuum.StateTransition{
			MasterID:  master,
			Status:    state.Status,
			Previous:  previous,
			Raw:       state.Raw,
			CreatedAt: state.UpdatedAt,
		})
		cancel()
		if err != nil {
			c.logger.Warn("failed to record state transition", "master_id", master, "error", err)
		}
	}

	if c.telemetry != nil {
		c.telemetry.WriteMasterState(string(master), string(state.Status), state.Raw)
	}

	activity := vacuum.ActivityFor(state.Status)
	if c.events != nil {
		c.events.Broadcast(vacuum.ChannelState, StateEvent{
			MasterID: master,
			Status:   state.Status,
			Previous: previous,
			Raw:      state.Raw,
			Activity: activity,
		})
	}

	c.publishRoomStates(master, activity)
}

// PublishRoomStates republishes the display state of every room of master
// from the cached state.
func (c *StateCache) PublishRoomStates(master vacuum.MasterID) {
	c.mu.RLock()
	state, ok := c.states[master]
	c.mu.RUnlock()
	status := vacuum.StatusUnknown
	if ok {
		status = state.Status
	}
	c.publishRoomStates(master, vacuum.ActivityFor(status))
}

func (c *StateCache) publishRoomStates(master vacuum.MasterID, activity vacuum.Activity) {
	c.roomsMu.RLock()
	rooms := c.rooms
	c.roomsMu.RUnlock()
	if rooms == nil || c.mqtt == nil || !c.mqtt.IsConnected() {
		return
	}

	now := c.now().UTC()
	for _, r := range rooms.ListByMaster(master) {
		payload, err := json.Marshal(RoomStateMessage{
			UniqueID:  r.UniqueID(),
			Name:      r.Name(),
			MasterID:  string(master),
			RoomID:    int(r.RoomID()),
			State:     string(activity),
			Features:  r.Features().Names(),
			Timestamp: now,
		})
		if err != nil {
			c.logger.Error("failed to marshal room state", "unique_id", r.UniqueID(), "error", err)
			continue
		}
		if err := c.mqtt.Publish(mqtt.Topics{}.RoomState(r.UniqueID()), payload, qosAtLeastOnce, true); err != nil {
			c.logger.Warn("failed to publish room state", "unique_id", r.UniqueID(), "error", err)
		}
	}
}
