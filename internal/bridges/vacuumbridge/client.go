package vacuumbridge

import (
	"github.com/nerrad567/gray-logic-vacuumzones/internal/infrastructure/mqtt"
)

// MQTTClient is the subset of *mqtt.Client the bridge adapters use.
// This allows mocking in tests.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Logger is the logging surface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// qosAtLeastOnce is used for every bridge publish and subscription.
const qosAtLeastOnce byte = 1

// parseVacuumTopic returns the id of a graylogic/{category}/vacuum/{id} topic.
func parseVacuumTopic(topic, category string) (string, bool) {
	cat, protocol, id, ok := mqtt.ParseBridgeTopic(topic)
	if !ok || cat != category || protocol != mqtt.ProtocolVacuum {
		return "", false
	}
	return id, true
}
