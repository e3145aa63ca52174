package telemetry

import (
	"encoding/json"
	"log"
	"time"

	"github.com/automatedhome/common/pkg/mqttclient"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/automatedhome/freezer/pkg/sensor"
)

type mqttFrame struct {
	Name      string   `json:"name"`
	Timestamp string   `json:"timestamp"`
	Temp      *float64 `json:"temp"`
	RH        *float64 `json:"rh"`
}

// MQTT publishes each reading to "<prefix>/<sensor key>/state".
type MQTT struct {
	client mqtt.Client
	prefix string
}

// NewMQTT connects to the broker and returns a publisher. The client
// auto-reconnects, so a broker outage only drops frames published while
// it lasts.
func NewMQTT(clientID, broker, prefix string) *MQTT {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetKeepAlive(2 * time.Second)
	opts.SetPingTimeout(1 * time.Second)
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("Failed to connect to MQTT broker %s: %v", broker, err)
		}
	}()

	return &MQTT{client: client, prefix: prefix}
}

// Publish sends one reading as a retained-free QoS 0 state message.
// The broker round trip runs on its own goroutine so a slow or dead
// broker never stalls the polling cycle.
func (m *MQTT) Publish(key, name string, r sensor.Reading) {
	frame := mqttFrame{
		Name:      name,
		Timestamp: r.Time.Format(time.RFC3339Nano),
		Temp:      finite(r.Temperature),
		RH:        finite(r.Humidity),
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		log.Printf("%s - failed to encode MQTT frame: %v", name, err)
		return
	}

	topic := m.prefix + "/" + key + "/state"
	go func() {
		// Delivery failures are already logged by the client helper.
		_ = mqttclient.Publish(m.client, topic, 0, false, string(payload))
	}()
}
