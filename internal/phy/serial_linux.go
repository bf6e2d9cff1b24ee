package phy

import (
	goserial "github.com/daedaluz/goserial"
	"golang.org/x/sys/unix"
)

const (
	ioctlGetTermios = unix.TCGETS
	ioctlSetTermios = unix.TCSETS
)

// setArbitraryBaudEvenParity configures 8 data bits, even parity, 1 stop
// bit, and a non-standard baud rate (e.g. 93750 or 187500 for PROFIBUS)
// through goserial's termios2 ioctls, which carry explicit ISpeed/OSpeed
// fields the stock POSIX termios struct has no room for.
func setArbitraryBaudEvenParity(p *goserial.Port, baud int) error {
	t, err := p.GetAttr2()
	if err != nil {
		return err
	}
	t.Cflag &^= goserial.CSTOPB | goserial.PARODD
	t.Cflag |= goserial.CS8 | goserial.PARENB | goserial.CLOCAL | goserial.CREAD
	t.ISpeed = uint32(baud)
	t.OSpeed = uint32(baud)
	return p.SetAttr2(goserial.TCSANOW, t)
}
