package notify

import "testing"

func TestNotifierDisabledWithoutConfig(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		channel string
		want    bool
	}{
		{"no token", "", "#alerts", false},
		{"no channel", "xoxb-token", "", false},
		{"configured", "xoxb-token", "#alerts", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewNotifier(tt.token, tt.channel)
			if n.Enabled() != tt.want {
				t.Errorf("Enabled() = %v, want %v", n.Enabled(), tt.want)
			}
		})
	}
}

func TestDisabledNotifierIsNoOp(t *testing.T) {
	n := NewNotifier("", "")
	// must not panic or attempt network calls
	n.SourceDown("am-fra", 1, "connection refused")
	n.SourceRecovered("am-fra")
}
