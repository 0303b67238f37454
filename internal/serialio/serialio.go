// Package serialio is the Linux termios backend: raw-mode port I/O,
// /dev enumeration with USB metadata from sysfs, and a USB-level
// reset escape hatch for hung adapters.
package serialio

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

var (
	ErrInvalidBaudRate = errors.New("invalid baud rate")
	ErrPortClosed      = errors.New("serial port is closed")
	ErrDeviceNotFound  = errors.New("serial device not found")

	ErrUSBInfoNotAvailable  = errors.New("USB device information not available")
	ErrUSBResetNotAvailable = errors.New("usbreset utility not available")
)

// Port is an open raw-mode serial connection. Read returns (0, nil)
// when the line has been silent for the poll interval, so callers can
// loop on it without blocking forever against a closed descriptor.
type Port struct {
	mu     sync.RWMutex
	fd     int
	closed bool
}

// Open opens a port in raw mode at the given baud rate, 8N1, no flow
// control.
func Open(path string, baudRate int) (*Port, error) {
	speed, ok := baudRates[baudRate]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBaudRate, baudRate)
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		if errors.Is(err, unix.ENOENT) {
			return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, path)
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	if err := configure(fd, speed); err != nil {
		unix.Close(fd)
		return nil, err
	}

	return &Port{fd: fd}, nil
}

// configure puts the descriptor in raw 8N1 mode. VMIN=0/VTIME=2 makes
// reads poll in 200 ms windows instead of blocking indefinitely.
func configure(fd int, speed uint32) error {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("failed to get termios: %w", err)
	}

	termios.Cflag = unix.CS8 | unix.CREAD | unix.CLOCAL
	termios.Iflag = 0
	termios.Oflag = 0
	termios.Lflag = 0

	termios.Cc[unix.VMIN] = 0
	termios.Cc[unix.VTIME] = 2

	termios.Cflag = (termios.Cflag &^ unix.CBAUD) | speed
	termios.Ispeed = speed
	termios.Ospeed = speed

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		return fmt.Errorf("failed to set termios: %w", err)
	}

	// Discard whatever the device emitted before we were listening.
	unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIOFLUSH)

	return nil
}

func (p *Port) Read(buf []byte) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, ErrPortClosed
	}

	n, err := unix.Read(p.fd, buf)
	if n < 0 {
		n = 0
	}
	return n, err
}

func (p *Port) Write(data []byte) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, ErrPortClosed
	}

	return unix.Write(p.fd, data)
}

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}

	err := unix.Close(p.fd)
	p.closed = true
	return err
}

// baudRates maps integer rates to their termios constants.
var baudRates = map[int]uint32{
	50:      unix.B50,
	75:      unix.B75,
	110:     unix.B110,
	134:     unix.B134,
	150:     unix.B150,
	200:     unix.B200,
	300:     unix.B300,
	600:     unix.B600,
	1200:    unix.B1200,
	1800:    unix.B1800,
	2400:    unix.B2400,
	4800:    unix.B4800,
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	500000:  unix.B500000,
	576000:  unix.B576000,
	921600:  unix.B921600,
	1000000: unix.B1000000,
	1152000: unix.B1152000,
	1500000: unix.B1500000,
	2000000: unix.B2000000,
	2500000: unix.B2500000,
	3000000: unix.B3000000,
	3500000: unix.B3500000,
	4000000: unix.B4000000,
}

// SupportedBaudRate reports whether the backend can configure the rate.
func SupportedBaudRate(rate int) bool {
	_, ok := baudRates[rate]
	return ok
}
