package browser

import "testing"

func TestShouldBlock(t *testing.T) {
	set := map[string]bool{"fonts": true, "media": true, "images": true, "websocket": true}
	tests := []struct {
		resType string
		want    bool
	}{
		{"Font", true},
		{"Media", true},
		{"Stylesheet", false},
		{"Image", false},
		{"WebSocket", true},
		{"Document", false},
	}
	for _, tt := range tests {
		if got := shouldBlock(set, tt.resType); got != tt.want {
			t.Errorf("shouldBlock(%q) = %v, want %v", tt.resType, got, tt.want)
		}
	}
}
