//go:build tinygo

// Command blinky toggles an LED with a busy-wait that gets shorter each time
// the button is seen high during the wait. Transitions are logged over serial
// and, when configured, shown on an LCD and published over MQTT.
package main

import (
	"log/slog"
	"machine"
	"time"

	"github.com/harveysanders/picoblinky/blinky/board"
	"github.com/harveysanders/picoblinky/blinky/config"
	"github.com/harveysanders/picoblinky/blinky/control"
	"github.com/harveysanders/picoblinky/blinky/display"
	"github.com/harveysanders/picoblinky/blinky/netstack"
	"github.com/harveysanders/picoblinky/blinky/telemetry"
	"github.com/soypat/cyw43439"
)

func main() {
	cfg, cfgErr := config.Load()
	logger := slog.New(slog.NewTextHandler(machine.Serial, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	// Only covers this goroutine. A panic in the LCD, MQTT or packet pump
	// goroutines is printed by the TinyGo runtime, which then aborts.
	defer control.Recover(logger, func(reason any) {
		printErrForever(logger, "halted", slog.Any("reason", reason))
	})
	if cfgErr != nil {
		printErrForever(logger, "load config", slog.Any("reason", cfgErr))
	}

	var lcdMessages chan display.Message
	if cfg.LCDAddr != 0 {
		err := machine.I2C0.Configure(machine.I2CConfig{
			SDA: machine.Pin(config.PinSDA),
			SCL: machine.Pin(config.PinSCL),
		})
		if err != nil {
			printErrForever(logger, "configure I2C", slog.Any("reason", err))
		}
		lcdMessages = make(chan display.Message, 4)
		lcd, err := display.Open(machine.I2C0, cfg.LCDAddr)
		if err != nil {
			printErrForever(logger, "configure LCD", slog.Any("reason", err))
		}
		go display.NewHandler(lcd, lcdMessages, logger).Run()
		display.Send(lcdMessages, "blinky", "starting...")
	}

	var radio *cyw43439.Device
	var stack *netstack.Stack
	if cfg.WantsWifi() {
		var err error
		stack, err = netstack.Join(nil, netstack.Config{
			SSID:        cfg.SSID,
			Password:    cfg.Password,
			Hostname:    cfg.ClientID,
			MaxTCPPorts: 1,
			Logger:      logger,
		})
		if err != nil {
			printErrForever(logger, "wifi setup", slog.Any("reason", err))
		}
		logger.Info("wifi:ready", slog.String("ip", stack.Addr().String()))
		radio = stack.Device()
		go stack.Pump()
	}

	var led control.Output
	switch cfg.LEDBackend {
	case config.BackendCYW43439:
		if radio == nil {
			var err error
			radio, err = netstack.InitRadio(logger)
			if err != nil {
				printErrForever(logger, "radio init", slog.Any("reason", err))
			}
		}
		led = board.NewWifiLED(radio)
	default:
		led = board.NewGPIO(cfg.LEDPin)
	}
	button := board.Button(cfg.ButtonPin, cfg.ButtonPull)

	ctl := control.NewController(led, button, logger)

	if lcdMessages != nil {
		events := make(chan control.Event, 1)
		ctl.Subscribe(events)
		go display.Relay(events, lcdMessages)
	}
	if stack != nil {
		events := make(chan control.Event, 10)
		ctl.Subscribe(events)
		c := telemetry.Client{
			ID:                cfg.ClientID,
			Topic:             cfg.Topic,
			Username:          cfg.MQTTUser,
			Password:          cfg.MQTTPass,
			Logger:            logger,
			Timeout:           5 * time.Second,
			TCPBufSize:        2030, // MTU - ethhdr - iphdr - tcphdr
			HeartbeatInterval: 10 * time.Second,
		}
		go func() {
			err := c.ConnectAndPublish(stack.LnetoStack(), cfg.Broker, events, lcdMessages)
			if err != nil {
				printErrForever(logger, "connect to MQTT broker", slog.Any("reason", err))
			}
		}()
	}

	logger.Info("blinky:config",
		slog.Uint64("ledPin", uint64(cfg.LEDPin)),
		slog.Uint64("buttonPin", uint64(cfg.ButtonPin)),
		slog.String("pull", cfg.ButtonPull.String()),
	)
	if err := ctl.Run(); err != nil {
		printErrForever(logger, "blink loop", slog.Any("reason", err))
	}
}

// printErrForever logs at 1hz and never returns, so a serial monitor attached
// late still sees why the board stopped.
func printErrForever(logger *slog.Logger, msg string, args ...any) {
	for {
		logger.Error(msg, args...)
		time.Sleep(time.Second)
	}
}
