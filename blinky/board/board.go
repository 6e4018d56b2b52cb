//go:build tinygo

// Package board maps the blink controller onto Pico pins.
package board

import (
	"machine"

	"github.com/harveysanders/picoblinky/blinky/config"
	"github.com/soypat/cyw43439"
)

// GPIO is a push-pull LED output on a plain pin.
type GPIO struct {
	pin machine.Pin
}

func NewGPIO(n uint8) GPIO {
	pin := machine.Pin(n)
	pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return GPIO{pin: pin}
}

func (g GPIO) Set(level bool) error {
	g.pin.Set(level)
	return nil
}

// Button configures pin n as a digital input. machine.Pin already satisfies
// control.Input.
func Button(n uint8, pull config.Pull) machine.Pin {
	pin := machine.Pin(n)
	mode := machine.PinInput
	switch pull {
	case config.PullUp:
		mode = machine.PinInputPullup
	case config.PullDown:
		mode = machine.PinInputPulldown
	}
	pin.Configure(machine.PinConfig{Mode: mode})
	return pin
}

// WifiLED is the Pico W on-board LED, driven through GPIO 0 of the radio.
type WifiLED struct {
	dev *cyw43439.Device
}

func NewWifiLED(dev *cyw43439.Device) WifiLED {
	return WifiLED{dev: dev}
}

func (w WifiLED) Set(level bool) error {
	return w.dev.GPIOSet(0, level)
}
