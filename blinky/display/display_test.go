package display

import (
	"testing"

	"github.com/harveysanders/picoblinky/blinky/control"
)

type fakeLCD struct {
	clears int
	x, y   uint8
	screen [rows]string
}

func (f *fakeLCD) ClearDisplay() {
	f.clears++
	f.screen = [rows]string{}
}

func (f *fakeLCD) SetCursor(x, y uint8) { f.x, f.y = x, y }

func (f *fakeLCD) Print(data []byte) { f.screen[f.y] += string(data) }

// fakeI2C records the addresses written to.
type fakeI2C struct {
	addrs map[uint16]int
}

func (f *fakeI2C) Tx(addr uint16, w, r []byte) error {
	if f.addrs == nil {
		f.addrs = make(map[uint16]int)
	}
	f.addrs[addr]++
	return nil
}

func TestOpenConfiguresDisplay(t *testing.T) {
	bus := &fakeI2C{}
	dev, err := Open(bus, 0x27)
	if err != nil {
		t.Fatalf("Open() err = %v", err)
	}
	if dev == nil {
		t.Fatalf("Open() returned nil device")
	}
	if bus.addrs[0x27] == 0 || len(bus.addrs) != 1 {
		t.Fatalf("writes by address = %v, want only 0x27", bus.addrs)
	}
}

func TestHandlerRunTruncates(t *testing.T) {
	lcd := &fakeLCD{}
	msgs := make(chan Message, 2)
	msgs <- Message{Line1: []byte("short"), Line2: []byte("0123456789abcdefXYZ")}
	msgs <- Message{Line1: []byte("Delay: 100000"), Line2: []byte("LED:on  B:0")}
	close(msgs)

	NewHandler(lcd, msgs, nil).Run()

	if lcd.clears != 2 {
		t.Fatalf("clears = %d, want 2", lcd.clears)
	}
	if lcd.screen[0] != "Delay: 100000" || lcd.screen[1] != "LED:on  B:0" {
		t.Fatalf("screen = %q", lcd.screen)
	}
}

func TestTruncate(t *testing.T) {
	if got := string(truncate([]byte("0123456789abcdefXYZ"))); got != "0123456789abcdef" {
		t.Fatalf("truncate = %q", got)
	}
	if got := string(truncate([]byte("ok"))); got != "ok" {
		t.Fatalf("truncate = %q", got)
	}
}

func TestSendNonBlocking(t *testing.T) {
	msgs := make(chan Message, 1)
	if !Send(msgs, "a", "b") {
		t.Fatalf("first send should queue")
	}
	if Send(msgs, "c", "d") {
		t.Fatalf("second send should be dropped")
	}
	if Send(nil, "e", "f") {
		t.Fatalf("nil channel should report not sent")
	}
	m := <-msgs
	if string(m.Line1) != "a" || string(m.Line2) != "b" {
		t.Fatalf("message = %q/%q", m.Line1, m.Line2)
	}
}

func TestLines(t *testing.T) {
	tests := []struct {
		ev           control.Event
		line1, line2 string
	}{
		{control.Event{Delay: 100_000, LED: true}, "Delay: 100000", "LED:on  B:0"},
		{control.Event{Delay: 25_000, LED: false, Bounces: 4321}, "Delay: 25000", "LED:off B:4321"},
	}
	for _, tt := range tests {
		m := Lines(tt.ev)
		if string(m.Line1) != tt.line1 || string(m.Line2) != tt.line2 {
			t.Fatalf("Lines(%+v) = %q/%q, want %q/%q", tt.ev, m.Line1, m.Line2, tt.line1, tt.line2)
		}
	}
}

func TestRelay(t *testing.T) {
	events := make(chan control.Event, 3)
	msgs := make(chan Message, 1)
	events <- control.Event{Delay: 75_000}
	events <- control.Event{Delay: 50_000}
	close(events)

	Relay(events, msgs)

	if len(msgs) != 1 {
		t.Fatalf("queued %d messages, want 1", len(msgs))
	}
	if m := <-msgs; string(m.Line1) != "Delay: 75000" {
		t.Fatalf("line1 = %q", m.Line1)
	}
}
