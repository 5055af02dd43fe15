package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stateforward/go-hsmbus/bus"
	"github.com/stateforward/go-hsmbus/sensor"
)

type sensorCommand struct {
	Type string `json:"type"`
}

// SensorCommands decodes {"type":"start"} and {"type":"stop"} documents and
// publishes them on the sensor command channel.
func SensorCommands(ch *bus.Typed[sensor.Command], timeout time.Duration) Decoder {
	return func(payload []byte) error {
		var command sensorCommand
		if err := json.Unmarshal(payload, &command); err != nil {
			return fmt.Errorf("json unmarshal: %w", err)
		}
		var kind sensor.MessageType
		switch command.Type {
		case "start":
			kind = sensor.MessageStart
		case "stop":
			kind = sensor.MessageStop
		default:
			return fmt.Errorf("unknown sensor command %q", command.Type)
		}
		return ch.Publish(sensor.Command{Type: kind}, timeout)
	}
}
