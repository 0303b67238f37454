package serialio

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// PortInfo describes an enumerated serial port. USB fields are filled
// from sysfs when the port hangs off a USB device; otherwise they are
// empty.
type PortInfo struct {
	Name         string
	Path         string
	Description  string
	Manufacturer string
	Product      string
	VendorID     string
	ProductID    string
	SerialNumber string
	BusNumber    string
	DeviceNumber string
}

// Serial device name patterns and the virtual terminals to exclude.
var (
	portPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^ttyUSB\d+$`), // USB serial adapters
		regexp.MustCompile(`^ttyACM\d+$`), // USB CDC/ACM devices
		regexp.MustCompile(`^ttyS\d+$`),   // Standard serial ports
		regexp.MustCompile(`^ttyAMA\d+$`), // ARM/Raspberry Pi serial
		regexp.MustCompile(`^ttymxc\d+$`), // i.MX serial ports
		regexp.MustCompile(`^ttyO\d+$`),   // OMAP serial ports
		regexp.MustCompile(`^ttySAC\d+$`), // Samsung serial ports
		regexp.MustCompile(`^ttyTHS\d+$`), // Tegra serial ports
	}

	excludePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^tty\d+$`),
		regexp.MustCompile(`^console$`),
		regexp.MustCompile(`^ptmx$`),
		regexp.MustCompile(`^pty.*$`),
	}
)

// ListPorts enumerates communication-capable serial devices under
// /dev, ordered by path, with USB metadata attached where available.
func ListPorts() ([]PortInfo, error) {
	entries, err := os.ReadDir("/dev")
	if err != nil {
		return nil, err
	}

	var infos []PortInfo
	for _, entry := range entries {
		name := entry.Name()
		if !matchesPortName(name) {
			continue
		}
		path := filepath.Join("/dev", name)
		if !isCharacterDevice(path) {
			continue
		}
		info := PortInfo{
			Name:        name,
			Path:        path,
			Description: describePort(name),
		}
		if strings.HasPrefix(name, "ttyUSB") || strings.HasPrefix(name, "ttyACM") {
			enrichUSBInfo(&info)
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos, nil
}

// GetPortInfo returns the metadata for a single port path.
func GetPortInfo(path string) (*PortInfo, error) {
	if !isCharacterDevice(path) {
		return nil, ErrDeviceNotFound
	}
	name := filepath.Base(path)
	info := &PortInfo{
		Name:        name,
		Path:        path,
		Description: describePort(name),
	}
	if strings.HasPrefix(name, "ttyUSB") || strings.HasPrefix(name, "ttyACM") {
		enrichUSBInfo(info)
	}
	return info, nil
}

func matchesPortName(name string) bool {
	for _, p := range excludePatterns {
		if p.MatchString(name) {
			return false
		}
	}
	for _, p := range portPatterns {
		if p.MatchString(name) {
			return true
		}
	}
	return false
}

func isCharacterDevice(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func describePort(name string) string {
	switch {
	case strings.HasPrefix(name, "ttyUSB"):
		return "USB Serial Port"
	case strings.HasPrefix(name, "ttyACM"):
		return "USB CDC/ACM Device"
	case strings.HasPrefix(name, "ttyAMA"):
		return "ARM Serial Port"
	case strings.HasPrefix(name, "ttymxc"):
		return "i.MX Serial Port"
	case strings.HasPrefix(name, "ttySAC"):
		return "Samsung Serial Port"
	case strings.HasPrefix(name, "ttyTHS"):
		return "Tegra Serial Port"
	case strings.HasPrefix(name, "ttyO"):
		return "OMAP Serial Port"
	case strings.HasPrefix(name, "ttyS"):
		return "Standard Serial Port"
	default:
		return "Serial Port"
	}
}

// enrichUSBInfo walks up from /sys/class/tty/<name>/device to the USB
// device directory (the first ancestor carrying idVendor) and reads
// its identification attributes.
func enrichUSBInfo(info *PortInfo) {
	dev, err := filepath.EvalSymlinks(filepath.Join("/sys/class/tty", info.Name, "device"))
	if err != nil {
		return
	}

	// ttyUSB sits below the interface directory, ttyACM directly on
	// it; either way the USB device is a couple of levels up.
	dir := dev
	for i := 0; i < 4; i++ {
		if _, err := os.Stat(filepath.Join(dir, "idVendor")); err == nil {
			info.VendorID = readSysfsAttr(dir, "idVendor")
			info.ProductID = readSysfsAttr(dir, "idProduct")
			info.SerialNumber = readSysfsAttr(dir, "serial")
			info.Manufacturer = readSysfsAttr(dir, "manufacturer")
			info.Product = readSysfsAttr(dir, "product")
			info.BusNumber = readSysfsAttr(dir, "busnum")
			info.DeviceNumber = readSysfsAttr(dir, "devnum")
			return
		}
		dir = filepath.Dir(dir)
	}
}

func readSysfsAttr(dir, name string) string {
	b, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
