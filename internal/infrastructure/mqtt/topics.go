package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes.
//
// Bridge topics use the flat scheme graylogic/{category}/{protocol}/{id}, the
// same layout every Gray Logic bridge publishes on.
const (
	// TopicPrefixBridge is the base for all bridge topics.
	TopicPrefixBridge = "graylogic"

	// TopicPrefixCore is the base for topics this service publishes.
	TopicPrefixCore = "graylogic/core"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "graylogic/system"

	// ProtocolVacuum is the protocol segment used by vacuum bridges.
	ProtocolVacuum = "vacuum"
)

// Topic categories published or consumed by vacuum bridges.
const (
	CategoryState   = "state"
	CategoryCommand = "command"
	CategoryAck     = "ack"
	CategoryMap     = "map"
	CategoryHealth  = "health"
)

// Topics provides builders for Gray Logic MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.VacuumCommand("vacuum.roborock_s7")
//	// Returns: "graylogic/command/vacuum/vacuum.roborock_s7"
type Topics struct{}

// BridgeTopic returns graylogic/{category}/{protocol}/{id}.
func (Topics) BridgeTopic(category, protocol, id string) string {
	return fmt.Sprintf("%s/%s/%s/%s", TopicPrefixBridge, category, protocol, id)
}

// VacuumBridgeHealth returns the retained heartbeat topic of the vacuum
// bridge. Its LWT publishes status "offline" here.
//
// Example: graylogic/health/vacuum
func (Topics) VacuumBridgeHealth() string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixBridge, CategoryHealth, ProtocolVacuum)
}

// VacuumState returns the retained state topic a bridge publishes for a master.
//
// Example: graylogic/state/vacuum/vacuum.roborock_s7
func (t Topics) VacuumState(masterID string) string {
	return t.BridgeTopic(CategoryState, ProtocolVacuum, masterID)
}

// VacuumCommand returns the topic commands for a master are published on.
//
// Example: graylogic/command/vacuum/vacuum.roborock_s7
func (t Topics) VacuumCommand(masterID string) string {
	return t.BridgeTopic(CategoryCommand, ProtocolVacuum, masterID)
}

// VacuumAck returns the topic a bridge acknowledges commands on.
//
// Example: graylogic/ack/vacuum/vacuum.roborock_s7
func (t Topics) VacuumAck(masterID string) string {
	return t.BridgeTopic(CategoryAck, ProtocolVacuum, masterID)
}

// VacuumMap returns the retained map topic carrying the room list.
//
// Example: graylogic/map/vacuum/image.roborock_s7_map
func (t Topics) VacuumMap(mapSource string) string {
	return t.BridgeTopic(CategoryMap, ProtocolVacuum, mapSource)
}

// AllVacuumStates matches every master's state topic.
//
// Pattern: graylogic/state/vacuum/+
func (t Topics) AllVacuumStates() string {
	return t.VacuumState("+")
}

// AllVacuumAcks matches every master's ack topic.
//
// Pattern: graylogic/ack/vacuum/+
func (t Topics) AllVacuumAcks() string {
	return t.VacuumAck("+")
}

// AllVacuumMaps matches every map topic.
//
// Pattern: graylogic/map/vacuum/+
func (t Topics) AllVacuumMaps() string {
	return t.VacuumMap("+")
}

// RoomState returns the topic the derived display state of a virtual room
// is republished on.
//
// Example: graylogic/core/room/vacuumzones_roborock_s7_16/state
func (Topics) RoomState(roomUID string) string {
	return fmt.Sprintf("%s/room/%s/state", TopicPrefixCore, roomUID)
}

// SystemStatus returns the system status topic used for LWT and online status.
//
// Example: graylogic/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// ParseBridgeTopic splits graylogic/{category}/{protocol}/{id} into its parts.
// The id may itself contain slashes; everything after the protocol segment is
// returned as the id.
func ParseBridgeTopic(topic string) (category, protocol, id string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefixBridge+"/")
	if !found {
		return "", "", "", false
	}
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}
