// Package display shows blink state on an HD44780 16x2 LCD behind an I2C
// backpack.
//
// Example usage:
//
//	lcdMessages := make(chan display.Message, 4)
//	handler := display.NewHandler(&dev, lcdMessages, logger)
//	go handler.Run()
//
//	// Never blocks; the message is dropped if the handler is behind.
//	display.Send(lcdMessages, "Delay: 75000", "LED:on  B:12")
package display

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/harveysanders/picoblinky/blinky/control"
	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/hd44780i2c"
)

const (
	columns = 16
	rows    = 2
)

// Message represents a two-line LCD message.
type Message struct {
	Line1 []byte
	Line2 []byte
}

// Device is the subset of *hd44780i2c.Device the handler drives.
type Device interface {
	ClearDisplay()
	SetCursor(x, y uint8)
	Print(data []byte)
}

// Open configures a 16x2 HD44780 at addr on an already configured I2C bus.
func Open(bus drivers.I2C, addr uint8) (*hd44780i2c.Device, error) {
	dev := hd44780i2c.New(bus, addr)
	err := dev.Configure(hd44780i2c.Config{
		Width:  columns,
		Height: rows,
	})
	if err != nil {
		return nil, errors.New("lcd configure: " + err.Error())
	}
	return &dev, nil
}

// Handler processes LCD messages from a channel.
type Handler struct {
	device   Device
	messages <-chan Message
	logger   *slog.Logger
}

func NewHandler(device Device, messages <-chan Message, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		device:   device,
		messages: messages,
		logger:   logger,
	}
}

// Run processes messages until the channel is closed.
// Run should be called in a separate goroutine.
func (h *Handler) Run() {
	for msg := range h.messages {
		h.display(msg)
	}
	h.logger.Debug("lcd:stopped")
}

func (h *Handler) display(msg Message) {
	h.device.ClearDisplay()
	h.device.SetCursor(0, 0)
	h.device.Print(truncate(msg.Line1))
	h.device.SetCursor(0, 1)
	h.device.Print(truncate(msg.Line2))
}

// truncate clips to the display width without copying.
func truncate(line []byte) []byte {
	if len(line) > columns {
		return line[:columns]
	}
	return line
}

// Send queues a message without blocking. It reports whether the message was
// queued.
func Send(messages chan<- Message, line1, line2 string) bool {
	if messages == nil {
		return false
	}
	select {
	case messages <- Message{Line1: []byte(line1), Line2: []byte(line2)}:
		return true
	default:
		return false
	}
}

// Lines renders a toggle event as two display lines.
func Lines(ev control.Event) Message {
	line1 := make([]byte, 0, columns)
	line1 = append(line1, "Delay: "...)
	line1 = strconv.AppendUint(line1, uint64(ev.Delay), 10)

	line2 := make([]byte, 0, columns)
	if ev.LED {
		line2 = append(line2, "LED:on  B:"...)
	} else {
		line2 = append(line2, "LED:off B:"...)
	}
	line2 = strconv.AppendInt(line2, int64(ev.Bounces), 10)
	return Message{Line1: line1, Line2: line2}
}

// Relay renders every event onto the display queue until events is closed.
// Events are dropped while the display is busy.
func Relay(events <-chan control.Event, messages chan<- Message) {
	for ev := range events {
		select {
		case messages <- Lines(ev):
		default:
		}
	}
}
