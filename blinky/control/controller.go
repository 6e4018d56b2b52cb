package control

import (
	"errors"
	"log/slog"
	"runtime"
	"time"
)

// Event describes one LED toggle.
type Event struct {
	Seq         uint32        `json:"seq"`
	Delay       Delay         `json:"delay"`
	Changed     bool          `json:"changed"`     // Delay was shortened (or wrapped) by a press.
	Bounces     int           `json:"bounces"`     // High button samples seen during the spin.
	LED         bool          `json:"led"`         // LED level after the toggle.
	SinceBootNS time.Duration `json:"sinceBootNS"` // Nanoseconds since the controller was created.
}

// Controller runs the blink loop: spin while sampling the button, adjust the
// delay, toggle the LED, log, repeat.
type Controller struct {
	led    *LED
	button Input
	logger *slog.Logger
	delay  Delay
	seq    uint32
	start  time.Time
	subs   []chan<- Event

	// Dropped counts events not delivered because a subscriber was full.
	Dropped uint32
}

func NewController(led Output, button Input, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		led:    NewLED(led),
		button: button,
		logger: logger,
		delay:  InitialDelay,
		start:  time.Now(),
	}
}

// Subscribe registers ch to receive every Event. Sends never block; events
// are dropped while ch is full.
func (c *Controller) Subscribe(ch chan<- Event) {
	c.subs = append(c.subs, ch)
}

// Delay returns the current delay.
func (c *Controller) Delay() Delay { return c.delay }

// LED returns the current LED level.
func (c *Controller) LED() bool { return c.led.Level() }

// Start drives the LED low and announces readiness.
func (c *Controller) Start() error {
	if err := c.led.Low(); err != nil {
		return errors.New("set led low: " + err.Error())
	}
	c.logger.Info("all set", slog.Uint64("delay", uint64(c.delay)))
	return nil
}

// Step performs one spin-adjust-toggle cycle.
func (c *Controller) Step() (Event, error) {
	highs := Spin(c.delay, c.button, c.bounce)
	next := c.delay.Next(highs > 0)
	changed := next != c.delay
	c.delay = next

	c.logger.Info("toggle!", slog.Uint64("delay", uint64(c.delay)))
	if err := c.led.Toggle(); err != nil {
		return Event{}, errors.New("toggle led: " + err.Error())
	}

	c.seq++
	ev := Event{
		Seq:         c.seq,
		Delay:       c.delay,
		Changed:     changed,
		Bounces:     highs,
		LED:         c.led.Level(),
		SinceBootNS: time.Since(c.start),
	}
	c.publish(ev)
	return ev, nil
}

// Run starts the controller and steps forever. It only returns if the LED
// cannot be driven.
func (c *Controller) Run() error {
	if err := c.Start(); err != nil {
		return err
	}
	for {
		if _, err := c.Step(); err != nil {
			return err
		}
		// TinyGo runs goroutines on a single core; the spin never yields on its own.
		runtime.Gosched()
	}
}

func (c *Controller) bounce() {
	c.logger.Debug("bounce!")
}

func (c *Controller) publish(ev Event) {
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			c.Dropped++
		}
	}
}

// Recover is deferred at the top of main. On panic it logs the reason and
// hands it to halt, which is expected never to return.
func Recover(logger *slog.Logger, halt func(reason any)) {
	r := recover()
	if r == nil {
		return
	}
	logger.Error("panic", slog.Any("reason", r))
	halt(r)
}
