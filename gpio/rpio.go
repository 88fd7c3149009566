package gpio

import (
	"fmt"

	"github.com/stianeikeland/go-rpio/v4"
)

// RPIOChip drives BCM lines through /dev/gpiomem.
type RPIOChip struct{}

func NewRPIOChip() *RPIOChip {
	return &RPIOChip{}
}

func (c *RPIOChip) Open() error {
	return rpio.Open()
}

func (c *RPIOChip) Setup(pin int, pull Pull) error {
	if pin < 0 || pin > 53 {
		return fmt.Errorf("pin %d out of range", pin)
	}
	p := rpio.Pin(pin)
	p.Input()
	switch pull {
	case PullUp:
		p.PullUp()
	case PullDown:
		p.PullDown()
	default:
		p.PullOff()
	}
	p.Detect(rpio.RiseEdge)
	return nil
}

func (c *RPIOChip) EdgeDetected(pin int) bool {
	return rpio.Pin(pin).EdgeDetected()
}

func (c *RPIOChip) Release(pin int) error {
	rpio.Pin(pin).Detect(rpio.NoEdge)
	return nil
}

func (c *RPIOChip) Close() error {
	return rpio.Close()
}
