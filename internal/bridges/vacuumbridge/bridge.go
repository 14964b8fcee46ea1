package vacuumbridge

import (
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-vacuumzones/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-vacuumzones/internal/vacuum"
)

// Options holds configuration for creating a Bridge.
type Options struct {
	// MQTTClient is the MQTT client implementation. Required.
	MQTTClient MQTTClient

	// MapSources maps masters to a configured map source. Optional.
	MapSources map[vacuum.MasterID]string

	// StateHistory records master state transitions. Optional.
	StateHistory vacuum.StateHistoryRepository

	// Telemetry writes state transitions to the time-series database. Optional.
	Telemetry StateTelemetry

	// Events receives state change broadcasts. Optional.
	Events vacuum.Broadcaster

	// Rooms lists rooms whose state is republished. Optional; see
	// StateCache.SetRooms.
	Rooms RoomLister

	// StateMaxAge is how long a master state stays trusted without a new
	// report or bridge heartbeat. Zero keeps states until replaced.
	StateMaxAge time.Duration

	Logger Logger
}

// Bridge subscribes the state cache, command client and map cache to the
// vacuum bridge topics of one MQTT client.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt   MQTTClient
	logger Logger

	States   *StateCache
	Commands *CommandClient
	Maps     *MapCache

	mu         sync.Mutex
	subscribed []string
}

// NewBridge creates a bridge. Call Start to subscribe.
func NewBridge(opts Options) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &Bridge{
		mqtt:   opts.MQTTClient,
		logger: logger,
		States: NewStateCache(StateCacheOptions{
			MQTTClient: opts.MQTTClient,
			History:    opts.StateHistory,
			Telemetry:  opts.Telemetry,
			Events:     opts.Events,
			Rooms:      opts.Rooms,
			Logger:     logger,
			MaxAge:     opts.StateMaxAge,
		}),
		Commands: NewCommandClient(opts.MQTTClient, logger),
		Maps:     NewMapCache(opts.MapSources, logger),
	}, nil
}

// Start subscribes to the ack, health, state and map topics.
// Acks are subscribed first so no acknowledgement can be missed once
// commands flow. Health precedes state so a retained "offline" is known
// before any retained state is trusted.
func (b *Bridge) Start() error {
	topics := mqtt.Topics{}
	subs := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{topics.AllVacuumAcks(), b.Commands.HandleAck},
		{topics.VacuumBridgeHealth(), b.States.HandleHealth},
		{topics.AllVacuumStates(), b.States.HandleState},
		{topics.AllVacuumMaps(), b.Maps.HandleMap},
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range subs {
		if err := b.mqtt.Subscribe(s.topic, qosAtLeastOnce, s.handler); err != nil {
			return fmt.Errorf("subscribe to %s: %w", s.topic, err)
		}
		b.subscribed = append(b.subscribed, s.topic)
		b.logger.Info("subscribed to vacuum bridge topic", "topic", s.topic)
	}
	return nil
}

// Stop unsubscribes from every topic Start subscribed to.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, topic := range b.subscribed {
		if err := b.mqtt.Unsubscribe(topic); err != nil {
			b.logger.Warn("failed to unsubscribe", "topic", topic, "error", err)
		}
	}
	b.subscribed = nil
	b.logger.Info("vacuum bridge stopped")
}
