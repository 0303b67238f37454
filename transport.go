package devman

import (
	"errors"
	"io"

	"golang.org/x/sys/unix"

	"github.com/allbin/go-devman/internal/serialio"
)

// PortInfo describes an enumerated serial port. Fields that the
// platform cannot provide are left empty.
type PortInfo struct {
	Path         string
	Name         string
	Description  string
	Manufacturer string
	Product      string
	VendorID     string
	ProductID    string
	SerialNumber string
}

// Conn is an open serial connection. Read returns when data arrives,
// the port is closed, or the device disappears; short reads are normal,
// and a read may return zero bytes with a nil error while the line is
// idle (the termios backend does so after each silent poll interval).
type Conn interface {
	io.Reader
	io.Writer
	Close() error
}

// Opener opens a named port at a baud rate in raw mode.
type Opener interface {
	Open(path string, baudRate int) (Conn, error)
}

// Enumerator lists the serial ports currently attached to the system.
type Enumerator interface {
	List() ([]PortInfo, error)
}

// SystemEnumerator enumerates ports via /dev and sysfs.
func SystemEnumerator() Enumerator { return systemEnumerator{} }

// SystemOpener opens ports through the termios backend.
func SystemOpener() Opener { return systemOpener{} }

type systemEnumerator struct{}

func (systemEnumerator) List() ([]PortInfo, error) {
	infos, err := serialio.ListPorts()
	if err != nil {
		return nil, err
	}
	out := make([]PortInfo, 0, len(infos))
	for _, in := range infos {
		out = append(out, PortInfo{
			Path:         in.Path,
			Name:         in.Name,
			Description:  in.Description,
			Manufacturer: in.Manufacturer,
			Product:      in.Product,
			VendorID:     in.VendorID,
			ProductID:    in.ProductID,
			SerialNumber: in.SerialNumber,
		})
	}
	return out, nil
}

type systemOpener struct{}

func (systemOpener) Open(path string, baudRate int) (Conn, error) {
	return serialio.Open(path, baudRate)
}

// isDisconnect classifies a read or write error as a physical unplug as
// opposed to a transport fault.
func isDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) {
		return true
	}
	return errors.Is(err, unix.ENXIO) ||
		errors.Is(err, unix.EIO) ||
		errors.Is(err, unix.ENODEV) ||
		errors.Is(err, unix.EBADF)
}
