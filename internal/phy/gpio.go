package phy

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// OpenTxEnableGPIO initializes the periph.io host drivers and looks up a
// GPIO line by name (e.g. "GPIO17") to drive as manual RS-485 DE/RE
// direction control, for adapters that have no kernel RS485 mode and
// no automatic direction sensing. Returns nil, nil if name is empty.
func OpenTxEnableGPIO(name string) (GPIOLine, error) {
	if name == "" {
		return nil, nil
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("phy: periph host init: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("phy: no such GPIO pin %q", name)
	}
	return &periphLine{pin: pin}, nil
}

type periphLine struct {
	pin gpio.PinIO
}

func (p *periphLine) Out(level bool) error {
	l := gpio.Low
	if level {
		l = gpio.High
	}
	return p.pin.Out(l)
}
