package utils

import (
	"reflect"
	"testing"
)

func TestMaskToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"wss://md.example.com/ws?token=abcdefghijkl", "wss://md.example.com/ws?token=abcd****"},
		{"wss://md.example.com/ws?token=short", "wss://md.example.com/ws?token=****"},
		{"wss://md.example.com/ws", "wss://md.example.com/ws"},
	}

	for _, tt := range tests {
		if got := MaskToken(tt.in); got != tt.want {
			t.Errorf("MaskToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUniqueSymbols(t *testing.T) {
	got := UniqueSymbols([]string{"BTCUSDT", " ETHUSDT ", "", "BTCUSDT", "SOLUSDT"})
	want := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("UniqueSymbols = %v, want %v", got, want)
	}
}
