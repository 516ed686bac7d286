package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Gateway struct {
	Addr            string        `env:"GATEWAY_ADDR" env-default:":8080"`
	DBPath          string        `env:"DB_PATH" env-default:"./data/fleetdispatch.db"`
	MQTTBroker      string        `env:"MQTT_BROKER" env-default:"tcp://localhost:1883"`
	MQTTClientID    string        `env:"MQTT_CLIENT_ID" env-default:"fleetdispatch-gateway"`
	AdminKey        string        `env:"ADMIN_KEY" env-default:"dev-admin-key"`
	BootstrapAdmins []int64       `env:"BOOTSTRAP_ADMINS" env-default:"1"`
	ReminderDelay   time.Duration `env:"REMINDER_DELAY" env-default:"5m"`
	SendTimeout     time.Duration `env:"MQTT_SEND_TIMEOUT" env-default:"3s"`
}

type Notifier struct {
	Addr            string `env:"NOTIFIER_ADDR" env-default:":8081"`
	MQTTBroker      string `env:"MQTT_BROKER" env-default:"tcp://localhost:1883"`
	MQTTClientID    string `env:"MQTT_CLIENT_ID" env-default:"fleetdispatch-notifier"`
	EventBufferSize int    `env:"EVENT_BUFFER_SIZE" env-default:"50"`
}

func LoadGateway() (Gateway, error) {
	var cfg Gateway
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Gateway{}, fmt.Errorf("gateway config: %w", err)
	}
	return cfg, nil
}

func LoadNotifier() (Notifier, error) {
	var cfg Notifier
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Notifier{}, fmt.Errorf("notifier config: %w", err)
	}
	return cfg, nil
}
