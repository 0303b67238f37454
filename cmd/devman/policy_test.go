package main

import (
	"testing"
	"time"

	"github.com/allbin/go-devman"
)

func testRules() []Rule {
	return []Rule{
		{
			Match: Match{Manufacturer: "^Keyspan$"},
			Settings: Settings{
				BaudRate:        9600,
				IDCommand:       "!SHOW HOST_NAME\n",
				IDPattern:       `Host Name = (.*)\r\n`,
				ResponseSuffix:  "\n",
				MaxQueueLength:  5,
				ResponseTimeout: 100 * time.Millisecond,
			},
		},
		{
			Match: Match{VendorID: "0403", Path: `^/dev/ttyUSB\d+$`},
			Settings: Settings{
				BaudRate:  115200,
				IDCommand: "ID?\n",
				IDPattern: `(?s)(.+)`,
			},
		},
	}
}

func TestBuildPolicyMatchesFirstRule(t *testing.T) {
	policy, err := BuildPolicy(testRules())
	if err != nil {
		t.Fatalf("BuildPolicy failed: %v", err)
	}

	cfg := policy(devman.PortInfo{
		Path:         "/dev/ttyUSB0",
		Manufacturer: "Keyspan",
	})
	if cfg == nil {
		t.Fatal("matching port rejected")
	}
	if cfg.BaudRate != 9600 {
		t.Errorf("BaudRate = %d, want 9600", cfg.BaudRate)
	}
	if string(cfg.GetIDCommand) != "!SHOW HOST_NAME\n" {
		t.Errorf("GetIDCommand = %q", cfg.GetIDCommand)
	}
	if cfg.MaxQueueLength != 5 {
		t.Errorf("MaxQueueLength = %d, want 5", cfg.MaxQueueLength)
	}

	id, err := cfg.ParseID([]byte("Host Name = blaster_test_epfl\r\n"))
	if err != nil {
		t.Fatalf("ParseID failed: %v", err)
	}
	if id != "blaster_test_epfl" {
		t.Errorf("ParseID = %q, want blaster_test_epfl", id)
	}

	if cfg.CheckResponse == nil {
		t.Fatal("response_suffix did not produce a CheckResponse")
	}
	if !cfg.CheckResponse([]byte("OK\n")) {
		t.Error("CheckResponse rejected a terminated response")
	}
	if cfg.CheckResponse([]byte("OK")) {
		t.Error("CheckResponse accepted an unterminated response")
	}
}

func TestBuildPolicyAllMatchersMustHold(t *testing.T) {
	policy, err := BuildPolicy(testRules())
	if err != nil {
		t.Fatalf("BuildPolicy failed: %v", err)
	}

	// Second rule: vendor id matches but path does not.
	cfg := policy(devman.PortInfo{
		Path:     "/dev/ttyACM0",
		VendorID: "0403",
	})
	if cfg != nil {
		t.Error("port accepted despite failing path matcher")
	}

	cfg = policy(devman.PortInfo{
		Path:     "/dev/ttyUSB3",
		VendorID: "0403",
	})
	if cfg == nil {
		t.Error("port matching all matchers was rejected")
	}
}

func TestBuildPolicyIgnoresUnmatchedPorts(t *testing.T) {
	policy, err := BuildPolicy(testRules())
	if err != nil {
		t.Fatalf("BuildPolicy failed: %v", err)
	}

	if cfg := policy(devman.PortInfo{Path: "/dev/ttyS0"}); cfg != nil {
		t.Error("unmatched port was accepted")
	}
}

func TestBuildPolicyValidatesRules(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
	}{
		{"missing baud rate", Rule{Settings: Settings{IDCommand: "x", IDPattern: "x"}}},
		{"missing id command", Rule{Settings: Settings{BaudRate: 9600, IDPattern: "x"}}},
		{"missing id pattern", Rule{Settings: Settings{BaudRate: 9600, IDCommand: "x"}}},
		{"bad id pattern", Rule{Settings: Settings{BaudRate: 9600, IDCommand: "x", IDPattern: "("}}},
		{"bad matcher", Rule{
			Match:    Match{Manufacturer: "("},
			Settings: Settings{BaudRate: 9600, IDCommand: "x", IDPattern: "x"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := BuildPolicy([]Rule{tt.rule}); err == nil {
				t.Error("expected error")
			}
		})
	}
}
