package api

import (
	"strings"
	"testing"
)

func TestNewCompletionID(t *testing.T) {
	id := NewCompletionID()
	if !strings.HasPrefix(id, "cmpl_") {
		t.Errorf("expected cmpl_ prefix, got %q", id)
	}
	if len(id) != len("cmpl_")+24 {
		t.Errorf("unexpected length %d for %q", len(id), id)
	}
	if !ValidateCompletionID(id) {
		t.Errorf("generated ID failed validation: %q", id)
	}
}

func TestNewCompletionIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewCompletionID()
		if seen[id] {
			t.Fatalf("duplicate ID generated: %q", id)
		}
		seen[id] = true
	}
}

func TestValidateCompletionID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"cmpl_abcdefghijklmnopqrstuvwx", true},
		{"cmpl_ABC123defGHI456jklMNO789", true},
		{"", false},
		{"cmpl_", false},
		{"cmpl_short", false},
		{"resp_abcdefghijklmnopqrstuvwx", false},
		{"cmpl_abcdefghijklmnopqrstuvw!", false},
		{"cmpl_abcdefghijklmnopqrstuvwxy", false},
	}
	for _, tt := range tests {
		if got := ValidateCompletionID(tt.id); got != tt.valid {
			t.Errorf("ValidateCompletionID(%q) = %v, want %v", tt.id, got, tt.valid)
		}
	}
}
