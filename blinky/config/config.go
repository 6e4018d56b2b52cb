// Package config holds build-time settings for the blinky firmware.
//
// Values are injected with linker flags, for example:
//
//	tinygo flash -target=pico-w -ldflags="-X github.com/harveysanders/picoblinky/blinky/config.ledBackend=cyw43439 \
//		-X github.com/harveysanders/picoblinky/blinky/config.ssid=myssid \
//		-X github.com/harveysanders/picoblinky/blinky/config.pass=secret \
//		-X github.com/harveysanders/picoblinky/blinky/config.broker=10.0.0.9:1883" ./blinky
package config

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"
)

// Set via linker flags. Empty strings fall back to defaults.
var (
	ledPin     string
	buttonPin  string
	buttonPull string
	ledBackend string
	logLevel   string
	lcdAddr    string
	ssid       string
	pass       string
	broker     string
	mqttUser   string
	mqttPass   string
	topic      string
	clientID   string
)

// maxPin is the highest user GPIO on the RP2040/RP2350.
const maxPin = 29

// I2C0 pins driving the LCD backpack.
const (
	PinSDA uint8 = 4
	PinSCL uint8 = 5
)

type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

func (p Pull) String() string {
	switch p {
	case PullUp:
		return "up"
	case PullDown:
		return "down"
	default:
		return "none"
	}
}

type Backend uint8

const (
	BackendGPIO     Backend = iota // LED on a plain GPIO pin.
	BackendCYW43439                // Pico W on-board LED, wired to the radio chip.
)

// Raw is the unparsed string form of the settings.
type Raw struct {
	LEDPin     string
	ButtonPin  string
	ButtonPull string
	LEDBackend string
	LogLevel   string
	LCDAddr    string
	SSID       string
	Password   string
	Broker     string
	MQTTUser   string
	MQTTPass   string
	Topic      string
	ClientID   string
}

type Config struct {
	LEDPin     uint8
	ButtonPin  uint8
	ButtonPull Pull
	LEDBackend Backend
	LogLevel   slog.Level
	// LCDAddr is the I2C address of an HD44780 backpack. Zero disables the LCD.
	LCDAddr  uint8
	SSID     string
	Password string
	// Broker is the MQTT broker as host:port. Empty disables telemetry.
	Broker   string
	MQTTUser string
	MQTTPass string // Requires MQTTUser.
	Topic    string
	ClientID string
}

// Default returns the settings for a bare Pico with an LED on GP15 and a
// button between GP14 and 3V3.
func Default() Config {
	return Config{
		LEDPin:     15,
		ButtonPin:  14,
		ButtonPull: PullDown,
		LEDBackend: BackendGPIO,
		LogLevel:   slog.LevelInfo,
		Topic:      "blinky/toggle",
		ClientID:   "tinygo-blinky",
	}
}

// Load parses the linker-flag settings.
func Load() (Config, error) {
	return Parse(Raw{
		LEDPin:     ledPin,
		ButtonPin:  buttonPin,
		ButtonPull: buttonPull,
		LEDBackend: ledBackend,
		LogLevel:   logLevel,
		LCDAddr:    lcdAddr,
		SSID:       ssid,
		Password:   pass,
		Broker:     broker,
		MQTTUser:   mqttUser,
		MQTTPass:   mqttPass,
		Topic:      topic,
		ClientID:   clientID,
	})
}

// Parse validates raw on top of Default.
func Parse(raw Raw) (Config, error) {
	cfg := Default()
	var err error

	if raw.LEDPin != "" {
		if cfg.LEDPin, err = parsePin(raw.LEDPin); err != nil {
			return cfg, errors.New("led pin: " + err.Error())
		}
	}
	if raw.ButtonPin != "" {
		if cfg.ButtonPin, err = parsePin(raw.ButtonPin); err != nil {
			return cfg, errors.New("button pin: " + err.Error())
		}
	}
	if raw.ButtonPull != "" {
		if cfg.ButtonPull, err = parsePull(raw.ButtonPull); err != nil {
			return cfg, err
		}
	}
	if raw.LEDBackend != "" {
		if cfg.LEDBackend, err = parseBackend(raw.LEDBackend); err != nil {
			return cfg, err
		}
	}
	if raw.LogLevel != "" {
		if err = cfg.LogLevel.UnmarshalText([]byte(raw.LogLevel)); err != nil {
			return cfg, errors.New("unknown log level: " + raw.LogLevel)
		}
	}
	if raw.LCDAddr != "" {
		addr, err := strconv.ParseUint(raw.LCDAddr, 0, 7)
		if err != nil || addr == 0 {
			return cfg, errors.New("invalid lcd address: " + raw.LCDAddr)
		}
		cfg.LCDAddr = uint8(addr)
	}
	if cfg.LEDBackend == BackendGPIO && cfg.LEDPin == cfg.ButtonPin {
		return cfg, errors.New("led and button share pin " + strconv.Itoa(int(cfg.LEDPin)))
	}
	if cfg.LCDAddr != 0 {
		if cfg.ButtonPin == PinSDA || cfg.ButtonPin == PinSCL {
			return cfg, errors.New("button pin " + strconv.Itoa(int(cfg.ButtonPin)) + " is used by the lcd i2c bus")
		}
		if cfg.LEDBackend == BackendGPIO && (cfg.LEDPin == PinSDA || cfg.LEDPin == PinSCL) {
			return cfg, errors.New("led pin " + strconv.Itoa(int(cfg.LEDPin)) + " is used by the lcd i2c bus")
		}
	}

	cfg.SSID = raw.SSID
	cfg.Password = raw.Password
	cfg.Broker = raw.Broker
	if cfg.Broker != "" && cfg.SSID == "" {
		return cfg, errors.New("broker " + cfg.Broker + " set without wifi ssid")
	}
	if raw.MQTTPass != "" && raw.MQTTUser == "" {
		return cfg, errors.New("mqtt password set without user")
	}
	cfg.MQTTUser = raw.MQTTUser
	cfg.MQTTPass = raw.MQTTPass
	if raw.Topic != "" {
		cfg.Topic = raw.Topic
	}
	if raw.ClientID != "" {
		cfg.ClientID = raw.ClientID
	}
	return cfg, nil
}

// WantsWifi reports whether the radio has to be brought up.
func (c Config) WantsWifi() bool {
	return c.Broker != ""
}

func parsePin(s string) (uint8, error) {
	s = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "GP")
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil || n > maxPin {
		return 0, errors.New("invalid gpio " + s)
	}
	return uint8(n), nil
}

func parsePull(s string) (Pull, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "floating":
		return PullNone, nil
	case "up", "pullup":
		return PullUp, nil
	case "down", "pulldown":
		return PullDown, nil
	default:
		return PullNone, errors.New("unknown button pull: " + s)
	}
}

func parseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gpio":
		return BackendGPIO, nil
	case "cyw43439", "wifi":
		return BackendCYW43439, nil
	default:
		return BackendGPIO, errors.New("unknown led backend: " + s)
	}
}
