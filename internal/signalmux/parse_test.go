package signalmux

import "testing"

func TestParseLine(t *testing.T) {
	tests := []struct {
		line        string
		wantTopic   string
		wantPayload string
		wantErr     bool
	}{
		{"/path_ready", "/path_ready", "", false},
		{"  /path_reset  ", "/path_reset", "", false},
		{`/initialpose {"frame_id":"map"}`, "/initialpose", `{"frame_id":"map"}`, false},
		{"", "", "", false},
		{"# comment", "", "", false},
		{"path_ready", "", "", true},
		{"/initialpose {broken", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			topic, payload, err := ParseLine(tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if topic != tt.wantTopic {
				t.Errorf("topic = %q, want %q", topic, tt.wantTopic)
			}
			if string(payload) != tt.wantPayload {
				t.Errorf("payload = %q, want %q", payload, tt.wantPayload)
			}
		})
	}
}

func TestFormatLineRoundTrip(t *testing.T) {
	line := FormatLine("/initialpose", []byte(`{"x":1}`))
	topic, payload, err := ParseLine(line)
	if err != nil || topic != "/initialpose" || string(payload) != `{"x":1}` {
		t.Errorf("round trip = %q %q %v", topic, payload, err)
	}
	if FormatLine("/path_ready", nil) != "/path_ready" {
		t.Error("empty payload should format as bare topic")
	}
}
