package devman

import (
	"testing"
	"time"
)

func TestPortConfigDefaults(t *testing.T) {
	cfg := PortConfig{BaudRate: 9600}.withDefaults()

	if cfg.MaxQueueLength != DefaultMaxQueueLength {
		t.Errorf("MaxQueueLength = %d, want %d", cfg.MaxQueueLength, DefaultMaxQueueLength)
	}
	if cfg.ResponseTimeout != DefaultResponseTimeout {
		t.Errorf("ResponseTimeout = %v, want %v", cfg.ResponseTimeout, DefaultResponseTimeout)
	}
	if cfg.BaudRate != 9600 {
		t.Errorf("BaudRate = %d, want 9600", cfg.BaudRate)
	}
}

func TestPortConfigCallerValuesWin(t *testing.T) {
	cfg := PortConfig{
		BaudRate:        115200,
		MaxQueueLength:  5,
		ResponseTimeout: 50 * time.Millisecond,
	}.withDefaults()

	if cfg.MaxQueueLength != 5 {
		t.Errorf("MaxQueueLength = %d, want 5", cfg.MaxQueueLength)
	}
	if cfg.ResponseTimeout != 50*time.Millisecond {
		t.Errorf("ResponseTimeout = %v, want 50ms", cfg.ResponseTimeout)
	}
}

func TestSubmitOptions(t *testing.T) {
	o := submitOptions{timeout: DefaultResponseTimeout, wait: DefaultDiscoveryTimeout}

	WithResponseTimeout(75 * time.Millisecond)(&o)
	if o.timeout != 75*time.Millisecond {
		t.Errorf("timeout = %v, want 75ms", o.timeout)
	}

	// Non-positive overrides are ignored.
	WithResponseTimeout(0)(&o)
	if o.timeout != 75*time.Millisecond {
		t.Errorf("timeout after zero override = %v, want 75ms", o.timeout)
	}

	WithWaitTimeout(time.Second)(&o)
	if o.wait != time.Second {
		t.Errorf("wait = %v, want 1s", o.wait)
	}
}

func TestManagerOptions(t *testing.T) {
	enum := &fakeEnumerator{}
	opener := &fakeOpener{}
	registry := NewIdentityRegistry()
	logger := testLogger()

	o := newOptions([]Option{
		WithEnumerator(enum),
		WithOpener(opener),
		WithRegistry(registry),
		WithLogger(logger),
		WithDiscoveryTimeout(time.Second),
	})

	if o.enum != enum || o.opener != opener || o.registry != registry || o.logger != logger {
		t.Error("options did not apply injected collaborators")
	}
	if o.timeout != time.Second {
		t.Errorf("timeout = %v, want 1s", o.timeout)
	}
}

func TestDefaultDiscoveryTimeout(t *testing.T) {
	o := newOptions(nil)
	if o.timeout != DefaultDiscoveryTimeout {
		t.Errorf("default discovery timeout = %v, want %v", o.timeout, DefaultDiscoveryTimeout)
	}
	if o.registry != sharedRegistry {
		t.Error("default registry is not the shared process registry")
	}
}
