// Package mqtt provides MQTT client connectivity for Gray Logic Vacuum Zones.
//
// The service talks to vacuum bridges exclusively over MQTT:
//
//	vacuumzones ↔ Mosquitto ↔ vacuum bridge ↔ robot
//
// Bridges publish retained master state and map payloads; the service
// publishes commands and waits for acknowledgements on the ack topic.
// See Topics for the full layout.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllVacuumStates(), 1, handler)
//	err = client.PublishJSON(mqtt.Topics{}.VacuumCommand("vacuum.s7"), cmd, false)
package mqtt
