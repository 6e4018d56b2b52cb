//go:build tinygo

// Package netstack brings up WiFi on a Pico W through the CYW43439 radio and
// runs an lneto stack on top of it. It also hands out the radio device, which
// owns the on-board LED.
package netstack

import (
	"errors"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/soypat/cyw43439"
	"github.com/soypat/lneto/x/xnet"
)

const mtu = cyw43439.MTU

// Config configures the radio and the lneto stack.
type Config struct {
	SSID     string
	Password string // Empty joins an open network.
	// Hostname is used for DHCP requests.
	Hostname string
	// MaxTCPPorts is the number of TCP ports to open for the stack.
	MaxTCPPorts int
	// RequestedAddr is the preferred DHCP address, and the static fallback
	// if DHCP does not complete.
	RequestedAddr netip.Addr
	Logger        *slog.Logger
}

// Stack wraps the lneto StackAsync and CYW43439 device for network operations.
type Stack struct {
	s       xnet.StackAsync
	dev     *cyw43439.Device
	log     *slog.Logger
	sendbuf []byte
}

// InitRadio powers up the CYW43439 without joining a network. This is all
// the on-board LED needs.
func InitRadio(logger *slog.Logger) (*cyw43439.Device, error) {
	start := time.Now()
	dev := cyw43439.NewPicoWDevice()
	dev.SetLogger(logger)
	err := dev.Init(cyw43439.DefaultWifiConfig())
	if err != nil {
		return nil, errors.New("wifi init failed: " + err.Error())
	}
	logger.Info("cyw43439:init", slog.Duration("duration", time.Since(start)))
	return dev, nil
}

// Join initializes dev (or a fresh device when dev is nil), joins the
// network, and prepares the stack. It retries the join until it succeeds.
func Join(dev *cyw43439.Device, cfg Config) (*Stack, error) {
	if cfg.Hostname == "" {
		return nil, errors.New("empty hostname")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	start := time.Now()
	if dev == nil {
		var err error
		if dev, err = InitRadio(logger); err != nil {
			return nil, err
		}
	}

	if len(cfg.Password) == 0 {
		logger.Info("wifi:joining open network", slog.String("ssid", cfg.SSID))
	} else {
		logger.Info("wifi:joining WPA2 network", slog.String("ssid", cfg.SSID), slog.Int("passlen", len(cfg.Password)))
	}
	for {
		err := dev.JoinWPA2(cfg.SSID, cfg.Password)
		if err == nil {
			break
		}
		logger.Error("wifi:join failed", slog.String("err", err.Error()))
		time.Sleep(5 * time.Second)
	}

	mac, err := dev.HardwareAddr6()
	if err != nil {
		return nil, errors.New("get hardware address: " + err.Error())
	}
	logger.Info("wifi:joined", slog.String("mac", net.HardwareAddr(mac[:]).String()))

	stack := &Stack{
		dev:     dev,
		log:     logger,
		sendbuf: make([]byte, mtu),
	}
	maxTCP := max(cfg.MaxTCPPorts, 1)
	err = stack.s.Reset(xnet.StackConfig{
		Hostname:        cfg.Hostname,
		MaxTCPConns:     maxTCP,
		RandSeed:        time.Since(start).Nanoseconds(),
		HardwareAddress: mac,
		MTU:             mtu,
	})
	if err != nil {
		return nil, errors.New("stack reset: " + err.Error())
	}
	dev.RecvEthHandle(func(pkt []byte) error {
		return stack.s.Demux(pkt, 0)
	})

	if err := stack.setupDHCP(cfg.RequestedAddr); err != nil {
		return nil, err
	}
	return stack, nil
}

func (s *Stack) setupDHCP(requested netip.Addr) error {
	if !requested.IsValid() {
		requested = netip.AddrFrom4([4]byte{})
	} else if !requested.Is4() {
		return errors.New("only dhcpv4 supported")
	}

	const pollTime = 50 * time.Millisecond
	rstack := s.s.StackRetrying(pollTime)

	s.log.Info("dhcp:starting")
	results, err := rstack.DoDHCPv4(requested.As4(), 3*time.Second, 3)
	if err != nil {
		if !requested.IsUnspecified() {
			s.log.Info("dhcp:assigning static ip", slog.String("ip", requested.String()))
			s.s.SetIPAddr(requested)
			return nil
		}
		return errors.New("dhcp failed: " + err.Error())
	}
	if err = s.s.AssimilateDHCPResults(results); err != nil {
		return errors.New("assimilate dhcp: " + err.Error())
	}
	gatewayHW, err := rstack.DoResolveHardwareAddress6(results.Router, 500*time.Millisecond, 4)
	if err != nil {
		return errors.New("resolve gateway: " + err.Error())
	}
	s.s.SetGateway6(gatewayHW)

	s.log.Info("dhcp:complete",
		slog.String("ourIP", results.AssignedAddr.String()),
		slog.String("router", results.Router.String()),
		slog.Uint64("lease_sec", uint64(results.TLease)),
	)
	return nil
}

// RecvAndSend processes one incoming and one outgoing packet.
func (s *Stack) RecvAndSend() (send, recv int, err error) {
	gotPacket, errRecv := s.dev.PollOne()
	if gotPacket {
		recv = 1
	}
	if errRecv != nil {
		s.log.Error("netstack:poll", slog.String("err", errRecv.Error()))
	}

	send, err = s.s.Encapsulate(s.sendbuf, -1, 0)
	if err != nil {
		s.log.Error("netstack:encapsulate", slog.Int("plen", send), slog.String("err", err.Error()))
	} else {
		err = errRecv
	}
	if send == 0 {
		return send, recv, err
	}
	err = s.dev.SendEth(s.sendbuf[:send])
	if err != nil {
		s.log.Error("netstack:send", slog.Int("plen", send), slog.String("err", err.Error()))
	}
	return send, recv, err
}

// Pump calls RecvAndSend forever, sleeping when the link is idle.
// Pump should be called in a separate goroutine.
func (s *Stack) Pump() {
	for {
		send, recv, _ := s.RecvAndSend()
		if send == 0 && recv == 0 {
			time.Sleep(5 * time.Millisecond)
		}
	}
}

// LnetoStack returns the underlying lneto StackAsync for TCP and DNS.
func (s *Stack) LnetoStack() *xnet.StackAsync {
	return &s.s
}

// Device returns the radio device.
func (s *Stack) Device() *cyw43439.Device {
	return s.dev
}

func (s *Stack) Addr() netip.Addr {
	return s.s.Addr()
}
