package sentinel

import "testing"

func TestDetect(t *testing.T) {
	d := New("")

	tests := []struct {
		name   string
		output string
		want   bool
	}{
		{"exact marker", "ALL WORK ITEMS COMPLETE", true},
		{"embedded in prose", "done with the task.\nALL WORK ITEMS COMPLETE\nbye", true},
		{"case mismatch", "all work items complete", false},
		{"partial phrase", "ALL WORK ITEMS", false},
		{"empty output", "", false},
		{"unrelated output", "fixed the login handler", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.Detect(tt.output); got != tt.want {
				t.Errorf("Detect(%q) = %v, want %v", tt.output, got, tt.want)
			}
		})
	}
}

func TestCustomMarker(t *testing.T) {
	d := New("DONE-DONE")
	if d.Marker() != "DONE-DONE" {
		t.Errorf("Marker() = %q, want DONE-DONE", d.Marker())
	}
	if !d.Detect("output says DONE-DONE here") {
		t.Error("expected custom marker to match")
	}
	if d.Detect("ALL WORK ITEMS COMPLETE") {
		t.Error("default marker should not match when a custom one is set")
	}
}

func TestDefaultMarker(t *testing.T) {
	if New("").Marker() != Marker {
		t.Error("empty marker should fall back to the default")
	}
}
