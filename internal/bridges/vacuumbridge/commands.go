package vacuumbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-vacuumzones/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-vacuumzones/internal/vacuum"
)

// CommandSource is the source field of every command this service sends.
const CommandSource = "vacuumzones"

// CommandClient publishes commands to vacuum bridges and waits for their
// acknowledgement. It implements vacuum.CommandSender.
//
// Acknowledgements are matched by command id. An ack that arrives after
// its sender gave up is logged and dropped.
//
// Thread Safety: All methods are safe for concurrent use.
type CommandClient struct {
	mqtt   MQTTClient
	logger Logger
	now    func() time.Time
	newID  func() string

	mu      sync.Mutex
	pending map[string]chan AckMessage
}

// NewCommandClient creates a command client. Call HandleAck for every
// message on the ack topics, or use Bridge which subscribes for you.
func NewCommandClient(client MQTTClient, logger Logger) *CommandClient {
	if logger == nil {
		logger = noopLogger{}
	}
	return &CommandClient{
		mqtt:    client,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
		pending: make(map[string]chan AckMessage),
	}
}

// Send publishes cmd to master and blocks until the bridge acknowledges it
// or ctx ends.
//
// Accepted and queued acks succeed. Failed and timeout acks return
// ErrCommandRejected; no ack before ctx ends returns ErrAckTimeout.
func (c *CommandClient) Send(ctx context.Context, master vacuum.MasterID, cmd vacuum.Command) error {
	if !c.mqtt.IsConnected() {
		return ErrNotConnected
	}

	msg := CommandMessage{
		ID:         c.newID(),
		Timestamp:  c.now().UTC(),
		DeviceID:   string(master),
		Command:    cmd.Name,
		Parameters: cmd.Params,
		Source:     CommandSource,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshalling command %s: %w", cmd.Name, err)
	}

	acks := make(chan AckMessage, 1)
	c.mu.Lock()
	c.pending[msg.ID] = acks
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.ID)
		c.mu.Unlock()
	}()

	topic := mqtt.Topics{}.VacuumCommand(string(master))
	if err := c.mqtt.Publish(topic, payload, qosAtLeastOnce, false); err != nil {
		return fmt.Errorf("publishing %s: %w", cmd.Name, err)
	}
	c.logger.Debug("command published", "master_id", master, "command", cmd.Name, "command_id", msg.ID)

	select {
	case ack := <-acks:
		return ackError(ack)
	case <-ctx.Done():
		return fmt.Errorf("%w: %s %s: %w", ErrAckTimeout, cmd.Name, msg.ID, ctx.Err())
	}
}

func ackError(ack AckMessage) error {
	switch ack.Status {
	case AckAccepted, AckQueued:
		return nil
	default:
		detail := string(ack.Status)
		if ack.Error != nil {
			detail = fmt.Sprintf("%s: %s %s", ack.Status, ack.Error.Code, ack.Error.Message)
		}
		return fmt.Errorf("%w: %s", ErrCommandRejected, detail)
	}
}

// HandleAck processes a message on graylogic/ack/vacuum/{master}.
func (c *CommandClient) HandleAck(topic string, payload []byte) error {
	if _, ok := parseVacuumTopic(topic, mqtt.CategoryAck); !ok {
		return nil
	}

	var ack AckMessage
	if err := json.Unmarshal(payload, &ack); err != nil {
		return fmt.Errorf("%w: ack: %w", ErrInvalidMessage, err)
	}
	if ack.CommandID == "" {
		return fmt.Errorf("%w: ack without command_id", ErrInvalidMessage)
	}

	c.mu.Lock()
	acks, ok := c.pending[ack.CommandID]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("ack for unknown command dropped", "command_id", ack.CommandID, "status", ack.Status)
		return nil
	}

	select {
	case acks <- ack:
	default:
		// A duplicate ack; the first one wins.
	}
	return nil
}

// Pending returns the number of commands awaiting an acknowledgement.
func (c *CommandClient) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
