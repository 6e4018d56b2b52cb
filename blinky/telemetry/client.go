// Package telemetry publishes blink events to an MQTT broker over the lneto
// TCP stack.
package telemetry

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/netip"
	"runtime"
	"time"

	"github.com/harveysanders/picoblinky/blinky/control"
	"github.com/harveysanders/picoblinky/blinky/display"
	"github.com/soypat/lneto/tcp"
	"github.com/soypat/lneto/x/xnet"
	mqtt "github.com/soypat/natiu-mqtt"
)

var pubFlags, _ = mqtt.NewPublishFlags(mqtt.QoS0, false, false)

type Client struct {
	ID                string
	Topic             string
	Timeout           time.Duration
	TCPBufSize        int
	Logger            *slog.Logger
	HeartbeatInterval time.Duration
	Username          string // MQTT broker username (optional)
	Password          string // MQTT broker password (optional, requires Username)
}

// Payload encodes an event as the JSON body of a publish.
func Payload(ev control.Event) ([]byte, error) {
	return json.Marshal(ev)
}

// ConnectAndPublish connects to the MQTT broker at addr and publishes every
// event received. It reconnects forever and only returns on configuration
// errors. Connection status is mirrored to lcdMessages, which may be nil.
func (c *Client) ConnectAndPublish(
	stack *xnet.StackAsync,
	addr string,
	events <-chan control.Event,
	lcdMessages chan<- display.Message,
) error {
	const pollTime = 5 * time.Millisecond

	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.Password != "" && c.Username == "" {
		return errors.New("mqtt password set without username")
	}
	c.Logger.Info("mqtt:address", slog.String("addr", addr))

	mqttHost, portStr, err := splitHostPort(addr)
	if err != nil {
		return errors.New("parsing host:port from " + addr + ": " + err.Error())
	}
	port := parsePort(portStr)
	if port == 0 {
		return errors.New("invalid port in " + addr)
	}
	if c.Topic == "" {
		return errors.New("empty topic")
	}

	rstack := stack.StackRetrying(pollTime)

	// Try to parse as IP first, otherwise DNS lookup.
	mqttAddr, err := netip.ParseAddr(mqttHost)
	if err != nil {
		c.Logger.Info("dns:resolving", slog.String("host", mqttHost))
		addrs, err := rstack.DoLookupIP(mqttHost, 5*time.Second, 3)
		if err != nil {
			return errors.New("dns lookup for " + mqttHost + ": " + err.Error())
		}
		if len(addrs) == 0 {
			return errors.New("dns lookup for " + mqttHost + ": no addresses returned")
		}
		mqttAddr = addrs[0]
	}
	c.Logger.Info("mqtt:resolved", slog.String("ip", mqttAddr.String()))

	cfg := mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: make([]byte, 1024)},
		OnPub: func(pubHead mqtt.Header, varPub mqtt.VariablesPublish, r io.Reader) error {
			c.Logger.Debug("mqtt:received", slog.String("topic", string(varPub.TopicName)))
			return nil
		},
	}
	var varconn mqtt.VariablesConnect
	varconn.SetDefaultMQTT([]byte(c.ID))
	if c.Username != "" {
		varconn.Username = []byte(c.Username)
		if c.Password != "" {
			varconn.Password = []byte(c.Password)
		}
	}
	mqttClient := mqtt.NewClient(cfg)

	var conn tcp.Conn
	err = conn.Configure(tcp.ConnConfig{
		RxBuf:             make([]byte, c.TCPBufSize),
		TxBuf:             make([]byte, c.TCPBufSize),
		TxPacketQueueSize: 3,
	})
	if err != nil {
		return errors.New("tcp configure: " + err.Error())
	}

	closeConn := func(reason string) {
		c.Logger.Error("tcpconn:closing", slog.String("reason", reason))
		conn.Close()
		for i := 0; i < 50 && !conn.State().IsClosed(); i++ {
			time.Sleep(100 * time.Millisecond)
		}
		conn.Abort()
	}

	pubVar := mqtt.VariablesPublish{TopicName: []byte(c.Topic)}
	serverAddr := netip.AddrPortFrom(mqttAddr, port)

	for {
		localPort := uint16(stack.Prand32()>>17) + 1024
		c.Logger.Info("socket:dialing", slog.Uint64("localPort", uint64(localPort)))
		display.Send(lcdMessages, "Connecting...", addr)

		err = rstack.DoDialTCP(&conn, localPort, serverAddr, 10*time.Second, 3)
		if err != nil {
			closeConn("dial failed: " + err.Error())
			time.Sleep(2 * time.Second)
			continue
		}
		c.Logger.Info("tcp:connected", slog.String("state", conn.State().String()))

		display.Send(lcdMessages, "MQTT Connect", c.ID)
		conn.SetDeadline(time.Now().Add(c.Timeout))
		err = mqttClient.StartConnect(&conn, &varconn)
		if err != nil {
			c.Logger.Error("mqtt:start-connect-failed", slog.String("reason", err.Error()))
			display.Send(lcdMessages, "Connect Failed", err.Error())
			closeConn("connect failed")
			continue
		}
		retries := 50
		for retries > 0 && !mqttClient.IsConnected() {
			time.Sleep(100 * time.Millisecond)
			if err = mqttClient.HandleNext(); err != nil {
				c.Logger.Error("mqtt:handle-next-failed", slog.String("err", err.Error()))
			}
			retries--
		}
		if !mqttClient.IsConnected() {
			c.Logger.Error("mqtt:connect-failed", slog.Any("reason", mqttClient.Err()))
			display.Send(lcdMessages, "Connect Failed", "Timed out")
			closeConn("connect timed out")
			continue
		}

		c.Logger.Info("mqtt:connected", slog.String("topic", c.Topic))
		display.Send(lcdMessages, "MQTT Connected", c.Topic)
		c.publishLoop(mqttClient, &conn, stack, pubVar, events)

		c.Logger.Error("mqtt:disconnected", slog.Any("reason", mqttClient.Err()))
		display.Send(lcdMessages, "Disconnected", "Reconnecting...")
		closeConn("disconnected")
		runtime.Gosched()
	}
}

func (c *Client) publishLoop(
	mqttClient *mqtt.Client,
	conn *tcp.Conn,
	stack *xnet.StackAsync,
	pubVar mqtt.VariablesPublish,
	events <-chan control.Event,
) {
	heartbeat := time.NewTicker(c.HeartbeatInterval)
	defer heartbeat.Stop()
	lastTx := time.Now()

	for mqttClient.IsConnected() {
		select {
		case ev := <-events:
			payload, err := Payload(ev)
			if err != nil {
				c.Logger.Error("mqtt:marshal-failed", slog.Any("reason", err))
				continue
			}
			conn.SetDeadline(time.Now().Add(c.Timeout))
			pubVar.PacketIdentifier = uint16(stack.Prand32())
			err = mqttClient.PublishPayload(pubFlags, pubVar, payload)
			if err != nil {
				c.Logger.Error("mqtt:publish-failed", slog.Any("reason", err))
				continue
			}
			c.Logger.Debug("mqtt:published",
				slog.Uint64("seq", uint64(ev.Seq)),
				slog.Uint64("packetID", uint64(pubVar.PacketIdentifier)),
			)
			lastTx = time.Now()
			if err = mqttClient.HandleNext(); err != nil {
				c.Logger.Error("mqtt:handle-next-failed", slog.String("err", err.Error()))
			}
		case now := <-heartbeat.C:
			if !pingDue(lastTx, now, c.HeartbeatInterval) {
				continue
			}
			conn.SetDeadline(now.Add(c.Timeout))
			if err := mqttClient.StartPing(); err != nil {
				c.Logger.Error("mqtt:ping-failed", slog.Any("reason", err))
				continue
			}
			lastTx = now
			// Consume the PINGRESP.
			if err := mqttClient.HandleNext(); err != nil {
				c.Logger.Error("mqtt:handle-next-failed", slog.String("err", err.Error()))
			}
		default:
			// TinyGo runs on a single core; release the thread so the blink loop and packet pump run.
			runtime.Gosched()
		}
	}
}

// pingDue reports whether nothing has been sent for at least one heartbeat
// interval. Publishes count as traffic for the broker keepalive.
func pingDue(lastTx, now time.Time, interval time.Duration) bool {
	return now.Sub(lastTx) >= interval
}

// splitHostPort splits a host:port string into separate host and port components.
// Returns an error if the format is invalid.
func splitHostPort(addr string) (host, port string, err error) {
	// Find the last colon to support IPv6 addresses
	colonIdx := -1
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			colonIdx = i
			break
		}
	}
	if colonIdx == -1 {
		return "", "", errors.New("missing port in address")
	}

	host = addr[:colonIdx]
	port = addr[colonIdx+1:]
	if host == "" {
		return "", "", errors.New("empty host")
	}
	if port == "" {
		return "", "", errors.New("empty port")
	}
	return host, port, nil
}

// parsePort converts a port string to uint16.
// Returns 0 if parsing fails or the value overflows.
func parsePort(portStr string) uint16 {
	var port uint32
	for i := 0; i < len(portStr); i++ {
		if portStr[i] < '0' || portStr[i] > '9' {
			return 0
		}
		port = port*10 + uint32(portStr[i]-'0')
		if port > 0xffff {
			return 0
		}
	}
	return uint16(port)
}
