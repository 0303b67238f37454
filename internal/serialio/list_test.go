package serialio

import "testing"

func TestMatchesPortName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"ttyUSB0", true},
		{"ttyUSB12", true},
		{"ttyACM0", true},
		{"ttyS0", true},
		{"ttyAMA0", true},
		{"ttymxc1", true},
		{"ttyO2", true},
		{"ttySAC3", true},
		{"ttyTHS1", true},
		{"tty1", false},     // virtual terminal
		{"console", false},  // console
		{"ptmx", false},     // pty multiplexer
		{"pts", false},      // pty slave dir
		{"ttyUSB", false},   // missing index
		{"random", false},   // not a tty
	}

	for _, tt := range tests {
		if got := matchesPortName(tt.name); got != tt.want {
			t.Errorf("matchesPortName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestDescribePort(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"ttyUSB0", "USB Serial Port"},
		{"ttyACM1", "USB CDC/ACM Device"},
		{"ttyAMA0", "ARM Serial Port"},
		{"ttymxc0", "i.MX Serial Port"},
		{"ttySAC0", "Samsung Serial Port"},
		{"ttyTHS0", "Tegra Serial Port"},
		{"ttyO0", "OMAP Serial Port"},
		{"ttyS0", "Standard Serial Port"},
		{"weird0", "Serial Port"},
	}

	for _, tt := range tests {
		if got := describePort(tt.name); got != tt.want {
			t.Errorf("describePort(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestSupportedBaudRate(t *testing.T) {
	for _, rate := range []int{9600, 19200, 115200, 3000000} {
		if !SupportedBaudRate(rate) {
			t.Errorf("SupportedBaudRate(%d) = false", rate)
		}
	}
	for _, rate := range []int{0, -1, 12345, 128000} {
		if SupportedBaudRate(rate) {
			t.Errorf("SupportedBaudRate(%d) = true", rate)
		}
	}
}

func TestOpenNonExistentDevice(t *testing.T) {
	if _, err := Open("/dev/nonexistent-serial-port", 9600); err == nil {
		t.Error("expected error when opening non-existent device")
	}
}

func TestOpenInvalidBaudRate(t *testing.T) {
	if _, err := Open("/dev/null", 12345); err == nil {
		t.Error("expected error for unsupported baud rate")
	}
}
