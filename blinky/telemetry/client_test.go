package telemetry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/harveysanders/picoblinky/blinky/control"
)

func TestSplitHostPort(t *testing.T) {
	tests := []struct {
		addr       string
		host, port string
		wantErr    bool
	}{
		{addr: "10.0.0.9:1883", host: "10.0.0.9", port: "1883"},
		{addr: "broker.local:8883", host: "broker.local", port: "8883"},
		{addr: "fe80::1:1883", host: "fe80::1", port: "1883"},
		{addr: "10.0.0.9", wantErr: true},
		{addr: ":1883", wantErr: true},
		{addr: "10.0.0.9:", wantErr: true},
	}
	for _, tt := range tests {
		host, port, err := splitHostPort(tt.addr)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("splitHostPort(%q) expected error", tt.addr)
			}
			continue
		}
		if err != nil {
			t.Fatalf("splitHostPort(%q): %v", tt.addr, err)
		}
		if host != tt.host || port != tt.port {
			t.Fatalf("splitHostPort(%q) = %q, %q", tt.addr, host, port)
		}
	}
}

func TestParsePort(t *testing.T) {
	tests := map[string]uint16{
		"1883":  1883,
		"65535": 65535,
		"65536": 0,
		"99999": 0,
		"18a3":  0,
		"":      0,
	}
	for in, want := range tests {
		if got := parsePort(in); got != want {
			t.Fatalf("parsePort(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestPayload(t *testing.T) {
	ev := control.Event{
		Seq:         7,
		Delay:       50_000,
		Changed:     true,
		Bounces:     12,
		LED:         true,
		SinceBootNS: 3 * time.Second,
	}
	b, err := Payload(ev)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"seq":         float64(7),
		"delay":       float64(50_000),
		"changed":     true,
		"bounces":     float64(12),
		"led":         true,
		"sinceBootNS": float64(3e9),
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("payload[%q] = %v, want %v (payload %s)", k, got[k], v, b)
		}
	}
}

func TestPingDue(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	const interval = 10 * time.Second
	tests := []struct {
		name   string
		lastTx time.Time
		want   bool
	}{
		{"recent publish", base.Add(-3 * time.Second), false},
		{"exactly one interval", base.Add(-interval), true},
		{"idle past interval", base.Add(-45 * time.Second), true},
	}
	for _, tt := range tests {
		if got := pingDue(tt.lastTx, base, interval); got != tt.want {
			t.Fatalf("%s: pingDue = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestConnectRejectsPasswordWithoutUsername(t *testing.T) {
	c := Client{ID: "pico", Topic: "blinky/toggle", Password: "s3cret"}
	err := c.ConnectAndPublish(nil, "10.0.0.9:1883", nil, nil)
	if err == nil || err.Error() != "mqtt password set without username" {
		t.Fatalf("ConnectAndPublish() err = %v", err)
	}
}
