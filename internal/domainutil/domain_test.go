package domainutil

import (
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"simple", "Example.COM", "example.com", false},
		{"trailing dot", "example.com.", "example.com", false},
		{"port stripped", "example.com:443", "example.com", false},
		{"whitespace", "  example.com  ", "example.com", false},
		{"empty", "", "", true},
		{"ipv4", "192.168.1.1", "", true},
		{"ipv6", "[::1]", "", true},
		{"no dot", "localhost", "", true},
		{"leading dash", "-example.com", "", true},
		{"leading dot", ".example.com", "", true},
		{"illegal char", "exam ple.com", "", true},
		{"unicode", "пример.com", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Normalize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEffectiveApex(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"www.example.com", "example.com"},
		{"a.b.example.co.uk", "example.co.uk"},
		{"example.com", "example.com"},
		{"*.example.com", "example.com"},
	}
	for _, tt := range tests {
		got, err := EffectiveApex(tt.in)
		if err != nil {
			t.Errorf("EffectiveApex(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("EffectiveApex(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeSet(t *testing.T) {
	got, err := NormalizeSet([]string{"App.Example.com", "www.example.com", "app.example.com."})
	if err != nil {
		t.Fatalf("NormalizeSet: %v", err)
	}
	want := []string{"app.example.com", "www.example.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NormalizeSet = %v, want %v", got, want)
	}

	if _, err := NormalizeSet([]string{"*.example.com"}); err == nil {
		t.Error("wildcard must be rejected")
	}
	if _, err := NormalizeSet(nil); err == nil {
		t.Error("empty list must be rejected")
	}
}
