package serialio

import (
	"fmt"
	"os/exec"
	"time"
)

// ResetUSBDevice performs a USB-level reset of the adapter behind a
// port path. This can recover hardware that no longer responds to its
// probe without physically unplugging it.
//
// Requires the usbreset utility (usbutils package) and permissions to
// touch the USB device, typically root.
func ResetUSBDevice(portPath string) error {
	info, err := GetPortInfo(portPath)
	if err != nil {
		return fmt.Errorf("failed to get port info: %w", err)
	}

	if info.BusNumber == "" || info.DeviceNumber == "" {
		return ErrUSBInfoNotAvailable
	}

	if !IsUSBResetAvailable() {
		return ErrUSBResetNotAvailable
	}

	// usbreset expects zero-padded 3-digit bus and device numbers.
	usbPath := fmt.Sprintf("%03s/%03s", info.BusNumber, info.DeviceNumber)

	cmd := exec.Command("usbreset", usbPath)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("usbreset failed: %w (output: %s)", err, string(output))
	}

	// Give the device time to re-enumerate before anyone retries.
	time.Sleep(2 * time.Second)

	return nil
}

// ResetUSBDeviceBySerial resets a USB device by its serial number,
// which survives re-enumeration when port paths do not.
func ResetUSBDeviceBySerial(serialNumber string) error {
	infos, err := ListPorts()
	if err != nil {
		return err
	}

	for _, info := range infos {
		if info.SerialNumber == serialNumber {
			return ResetUSBDevice(info.Path)
		}
	}

	return fmt.Errorf("device with serial %s not found", serialNumber)
}

// IsUSBResetAvailable checks if the usbreset utility is in PATH.
func IsUSBResetAvailable() bool {
	_, err := exec.LookPath("usbreset")
	return err == nil
}
