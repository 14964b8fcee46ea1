// Package vacuumbridge adapts the Gray Logic vacuum bridge MQTT contract to
// the interfaces of package vacuum.
//
// A vacuum bridge (the process that talks miio or a cloud API to the robot)
// publishes on the flat bridge topic scheme:
//
//	graylogic/state/vacuum/{master}    retained master state
//	graylogic/map/vacuum/{map_source}  retained map with a "rooms" attribute
//	graylogic/ack/vacuum/{master}      command acknowledgements
//
// and consumes commands on graylogic/command/vacuum/{master}.
//
// Three components cover that contract:
//
//   - StateCache implements vacuum.StateSource from the retained state topic
//     and records status transitions.
//   - CommandClient implements vacuum.CommandSender: it publishes a command
//     and waits for the acknowledgement carrying the same command id.
//   - MapCache discovers the rooms of a master from retained map payloads.
//
// Bridge wires the three onto one MQTT client.
package vacuumbridge
