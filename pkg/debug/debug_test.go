package debug

import (
	"log/slog"
	"testing"
)

func withCategories(t *testing.T, spec string) {
	t.Helper()
	orig := active
	active = splitCategories(spec)
	t.Cleanup(func() { active = orig })
}

func TestSplitCategories(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty", "", nil},
		{"single", "upstream", []string{"upstream"}},
		{"multiple", "upstream,webhook", []string{"upstream", "webhook"}},
		{"all", "all", []string{"all"}},
		{"with spaces", " upstream , webhook ", []string{"upstream", "webhook"}},
		{"uppercase normalized", "UPSTREAM,Webhook", []string{"upstream", "webhook"}},
		{"empty segments", "upstream,,webhook", []string{"upstream", "webhook"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitCategories(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for _, c := range tt.want {
				if !got[c] {
					t.Errorf("category %q missing from %v", c, got)
				}
			}
		})
	}
}

func TestEnabled(t *testing.T) {
	withCategories(t, "upstream,bridge")

	for _, on := range []string{"upstream", "bridge"} {
		if !Enabled(on) {
			t.Errorf("%s should be enabled", on)
		}
	}
	if Enabled("webhook") {
		t.Error("webhook should not be enabled")
	}
}

func TestEnabled_AllWildcard(t *testing.T) {
	withCategories(t, "all")

	if !Enabled("upstream") || !Enabled("anything") {
		t.Error("'all' should enable every category")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"TRACE", LevelTrace},
		{"trace", LevelTrace},
		{"DEBUG", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{" info ", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Errorf("short string should be unchanged, got %q", got)
	}
	if got := Truncate("hello world", 5); got != "hello..." {
		t.Errorf("expected truncation, got %q", got)
	}
}
