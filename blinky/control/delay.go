// Package control holds the button-paced blink loop. It has no hardware
// dependencies so it can be exercised on a host with fake pins.
package control

// Delay is the number of busy-wait iterations between LED toggles.
type Delay uint32

const (
	MaxDelay  Delay = 100_000
	MinDelay  Delay = 25_000
	DelayStep Delay = 25_000

	InitialDelay = MaxDelay
)

// Next returns the delay to use after a spin. A press shortens the delay by
// DelayStep; dropping below MinDelay wraps back to MaxDelay.
func (d Delay) Next(pressed bool) Delay {
	if !pressed {
		return d
	}
	if d < MinDelay+DelayStep {
		// Also covers d < DelayStep, where the subtraction would underflow.
		return MaxDelay
	}
	return d - DelayStep
}

// Valid reports whether d lies within [MinDelay, MaxDelay].
func (d Delay) Valid() bool {
	return d >= MinDelay && d <= MaxDelay
}

// Input is a digital input such as a push button.
type Input interface {
	Get() bool
}

// Spin busy-waits for n iterations while sampling in. Iterations run from 1 up
// to but not including n, so n <= 1 samples nothing. onHigh, if not nil, is
// called for every high sample. Spin returns the number of high samples.
func Spin(n Delay, in Input, onHigh func()) int {
	highs := 0
	for i := Delay(1); i < n; i++ {
		if in.Get() {
			if onHigh != nil {
				onHigh()
			}
			highs++
		}
	}
	return highs
}
