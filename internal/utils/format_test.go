package utils

import (
	"testing"
	"time"
)

func TestParseTimeUnit(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"bare seconds", "90", 90 * time.Second, false},
		{"seconds suffix", "30s", 30 * time.Second, false},
		{"minutes", "5m", 5 * time.Minute, false},
		{"hours", "2h", 2 * time.Hour, false},
		{"days", "1d", 24 * time.Hour, false},
		{"weeks", "1w", 7 * 24 * time.Hour, false},
		{"surrounding spaces", " 10m ", 10 * time.Minute, false},
		{"zero", "0", 0, false},
		{"empty", "", 0, true},
		{"unknown suffix", "5y", 0, true},
		{"garbage", "soon", 0, true},
		{"negative", "-5m", 0, true},
		{"suffix only", "h", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimeUnit(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTimeUnit(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("ParseTimeUnit(%q) = %v; want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"zero", 0, "0s"},
		{"sub second", 500 * time.Millisecond, "0s"},
		{"seconds", 45 * time.Second, "45s"},
		{"minutes and seconds", 5*time.Minute + 3*time.Second, "5m 3s"},
		{"hours and minutes", 2*time.Hour + 15*time.Minute, "2h 15m"},
		{"three units max", 3*24*time.Hour + 4*time.Hour + 10*time.Minute + 9*time.Second, "3d 4h 10m"},
		{"zero units skipped", 24*time.Hour + 5*time.Minute, "1d 5m"},
		{"exact hour", time.Hour, "1h"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FormatAge(tt.duration)
			if result != tt.expected {
				t.Errorf("FormatAge(%v) = %s; want %s", tt.duration, result, tt.expected)
			}
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		name     string
		number   int
		expected string
	}{
		{"zero", 0, "0"},
		{"triple digit", 123, "123"},
		{"thousands", 1234, "1,234"},
		{"millions", 1234567, "1,234,567"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FormatNumber(tt.number)
			if result != tt.expected {
				t.Errorf("FormatNumber(%d) = %s; want %s", tt.number, result, tt.expected)
			}
		})
	}
}

func TestTruncateText(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxLen   int
		expected string
	}{
		{"short string", "hello", 10, "hello"},
		{"needs truncation", "hello world", 8, "hello..."},
		{"very short max", "hello", 3, "..."},
		{"with newlines", "hello\nworld", 20, "hello world"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := TruncateText(tt.text, tt.maxLen)
			if result != tt.expected {
				t.Errorf("TruncateText(%q, %d) = %q; want %q", tt.text, tt.maxLen, result, tt.expected)
			}
		})
	}
}
