// Package devman manages a fleet of serial-attached devices that speak
// a request/response line-oriented protocol, and exposes one operation
// to application code: send a command to the device with a given
// identity, get its response. It keeps that operation reliable while
// the underlying hardware appears, disappears, reboots, or is replugged
// into different ports.
//
// # Basic Usage
//
// Describe which ports belong to the fleet with an OptionPolicy, then
// address devices by the identity they report:
//
//	hostName := regexp.MustCompile(`Host Name = (.*)\r\n`)
//
//	mgr := devman.NewManager(func(info devman.PortInfo) *devman.PortConfig {
//	    if info.Manufacturer != "Keyspan" {
//	        return nil // ignore this port
//	    }
//	    return &devman.PortConfig{
//	        BaudRate:     9600,
//	        GetIDCommand: []byte("!SHOW HOST_NAME\n"),
//	        ParseID: func(resp []byte) (string, error) {
//	            m := hostName.FindSubmatch(resp)
//	            if m == nil {
//	                return "", fmt.Errorf("unrecognized response %q", resp)
//	            }
//	            return string(m[1]), nil
//	        },
//	    }
//	})
//	defer mgr.Close()
//
//	resp, err := mgr.Request(ctx, "blaster_lab_3", []byte("!SHOW STATUS\n"))
//
// A device is defined by what it reports, not by where it is plugged
// in: if the device moves to another port, the same identity keeps
// working once the new port has identified it.
//
// # Port Lifecycle
//
// Each accepted port is owned by a PortManager that runs a reconnect
// loop for the life of the process: locate the port in enumeration,
// open it in raw mode, probe it for its identity, serve requests, and
// start over when the transport errors, closes, or the cable is
// pulled. Status transitions are observable through Subscribe; the
// numeric status codes are stable.
//
// # Response Framing
//
// Serial devices do not, in general, advertise message boundaries. A
// response is considered complete after a quiescence window: once no
// new bytes have arrived for the configured ResponseTimeout, whatever
// accumulated is the response. The window re-arms while bytes keep
// arriving, so slow devices are tolerated at the cost of unbounded
// total latency for a device that never goes quiet.
//
// # Ordering and Failure
//
// Requests on one port are served strictly in admission order, one
// write in flight at a time. A request fails with a specific error
// rather than being retried: ErrNotReady before identification,
// ErrQueueFull past queue capacity, ErrStaleIdentity when a different
// device appeared after admission, ErrWriteFailed on transport write
// failure, and ErrValidationFailed when the configured CheckResponse
// rejects the framed response. Use errors.Is() to classify:
//
//	if errors.Is(err, devman.ErrQueueFull) {
//	    // shed load
//	}
//
// # Transports
//
// The Linux termios backend is the default. Both the enumerator and
// the transport opener are interfaces, replaceable with WithEnumerator
// and WithOpener, which is how the package is tested without hardware.
//
// No state is persisted. The identity registry distinguishing "new"
// from "reconnect" lives in process memory and is shared between
// managers unless one is injected with WithRegistry.
package devman
