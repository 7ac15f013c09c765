package validation

import (
	"strings"
	"testing"
)

func TestValidateStreamKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid key", "stream-key-123", false},
		{"valid with underscore", "stream_key", false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 101), true},
		{"invalid chars", "stream key", true},
		{"invalid chars 2", "stream@key", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStreamKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateStreamKey() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidatePeerID(t *testing.T) {
	tests := []struct {
		name    string
		peerID  string
		wantErr bool
	}{
		{"valid peer ID", "peer-123", false},
		{"valid with underscore", "peer_123", false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 101), true},
		{"invalid chars", "peer 123", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePeerID(tt.peerID)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePeerID() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDisplayName(t *testing.T) {
	tests := []struct {
		name        string
		displayName string
		wantErr     bool
	}{
		{"valid name", "Alice", false},
		{"valid with spaces", "Alice B", false},
		{"valid unicode", "Алиса", false},
		{"empty", "", true},
		{"only whitespace", "   ", true},
		{"too long", strings.Repeat("a", 51), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDisplayName(tt.displayName)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDisplayName() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateChatBody(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		maxLen  int
		wantErr bool
	}{
		{"valid body", "hello chat", 500, false},
		{"exactly at cap", strings.Repeat("x", 500), 500, false},
		{"over cap", strings.Repeat("x", 501), 500, true},
		{"multibyte runes counted once", strings.Repeat("я", 500), 500, false},
		{"empty", "", 500, true},
		{"only whitespace", "   ", 500, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChatBody(tt.body, tt.maxLen)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateChatBody() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateTargetURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"empty is optional", "", false},
		{"valid rtmp", "rtmp://ingest.example.com/live", false},
		{"valid rtmps", "rtmps://ingest.example.com/live", false},
		{"valid https", "https://example.com/push", false},
		{"invalid scheme", "ftp://example.com", true},
		{"no host", "rtmp://", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTargetURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTargetURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateBitrate(t *testing.T) {
	tests := []struct {
		name    string
		bitrate int
		wantErr bool
	}{
		{"valid bitrate", 2500, false},
		{"minimum", 100, false},
		{"maximum", 10000, false},
		{"too low", 50, true},
		{"too high", 15000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBitrate(tt.bitrate)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBitrate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateStreamTitle(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		wantErr bool
	}{
		{"valid title", "My First Stream", false},
		{"empty", "", true},
		{"only whitespace", "  ", true},
		{"too long", strings.Repeat("a", 101), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStreamTitle(tt.title)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateStreamTitle() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
