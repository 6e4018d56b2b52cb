package control

// Output is a digital output such as an LED pin. Writes to a plain GPIO never
// fail, but the Pico W LED sits behind the radio chip and can.
type Output interface {
	Set(level bool) error
}

// LED tracks the level last written to an Output so it can be toggled.
type LED struct {
	out   Output
	level bool
}

func NewLED(out Output) *LED {
	return &LED{out: out}
}

// Set drives the LED to level. The remembered level only changes on success.
func (l *LED) Set(level bool) error {
	if err := l.out.Set(level); err != nil {
		return err
	}
	l.level = level
	return nil
}

func (l *LED) Low() error  { return l.Set(false) }
func (l *LED) High() error { return l.Set(true) }

// Toggle inverts the LED.
func (l *LED) Toggle() error { return l.Set(!l.level) }

// Level returns the last level successfully written.
func (l *LED) Level() bool { return l.level }
