package adc

import (
	"errors"
	"testing"
)

func TestFrame(t *testing.T) {
	frame := Frame()
	if frame[0] != ControlWord || frame[1] != ControlWord {
		t.Errorf("Expected control word 0x%02X in both bytes, got [0x%02X 0x%02X]",
			ControlWord, frame[0], frame[1])
	}
}

func TestDecodeFrame(t *testing.T) {
	testCases := []struct {
		name      string
		b0, b1    byte
		wantCode  uint16
		wantValid bool
	}{
		{"zero code", 0x00, 0x00, 0, true},
		{"low byte only", 0x00, 0xFF, 255, true},
		{"mid-scale", 0x07, 0xD0, 2000, true},
		{"detector idle floor", 0x0D, 0xFF, 3583, true},
		{"threshold boundary is valid", 13, 0x00, 13 << 8, true},
		{"one above threshold is noise", 14, 0x00, 14 << 8, false},
		{"line noise", 0xFF, 0xFF, 0xFFFF, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			raw := DecodeFrame(tc.b0, tc.b1)
			if raw.Code != tc.wantCode {
				t.Errorf("Expected code %d, got %d", tc.wantCode, raw.Code)
			}
			if raw.Valid != tc.wantValid {
				t.Errorf("Expected valid=%v, got %v", tc.wantValid, raw.Valid)
			}
			if raw.Status != tc.b0 {
				t.Errorf("Expected status 0x%02X, got 0x%02X", tc.b0, raw.Status)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	for _, speed := range ClockSpeeds {
		cfg := Config{ClockHz: speed}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Expected clock %d Hz to validate, got %v", speed, err)
		}
	}

	testCases := []struct {
		name    string
		clockHz int64
	}{
		{"arbitrary value", 1_000_000},
		{"off by one", 1_953_001},
		{"negative", -1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{ClockHz: tc.clockHz}
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected error for unsupported clock")
			}
			var configErr *ConfigError
			if !errors.As(err, &configErr) {
				t.Errorf("Expected ConfigError, got %T", err)
			}
		})
	}
}

func TestConfig_ValidateDefaultsClock(t *testing.T) {
	var cfg Config
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if cfg.ClockHz != DefaultClockHz {
		t.Errorf("Expected default clock %d Hz, got %d", DefaultClockHz, cfg.ClockHz)
	}
}
