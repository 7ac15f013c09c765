package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// StreamKeyRegex validates stream key format
	StreamKeyRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// PeerIDRegex validates peer ID format
	PeerIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateStreamKey validates a publish credential's format. Existence is
// the credential gateway's job, not ours.
func ValidateStreamKey(key string) error {
	if key == "" {
		return fmt.Errorf("stream key is required")
	}
	if len(key) > 100 {
		return fmt.Errorf("stream key is too long (max 100 characters)")
	}
	if !StreamKeyRegex.MatchString(key) {
		return fmt.Errorf("invalid stream key format")
	}
	return nil
}

// ValidatePeerID validates peer ID format
func ValidatePeerID(peerID string) error {
	if peerID == "" {
		return fmt.Errorf("peer ID is required")
	}
	if len(peerID) > 100 {
		return fmt.Errorf("peer ID is too long (max 100 characters)")
	}
	if !PeerIDRegex.MatchString(peerID) {
		return fmt.Errorf("invalid peer ID format")
	}
	return nil
}

// ValidateDisplayName validates a chat author's display name
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("display name is required")
	}
	if utf8.RuneCountInString(name) > 50 {
		return fmt.Errorf("display name is too long (max 50 characters)")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("display name contains invalid characters")
	}
	return nil
}

// ValidateChatBody validates a chat message body against the length cap
func ValidateChatBody(body string, maxLen int) error {
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("message body is required")
	}
	if utf8.RuneCountInString(body) > maxLen {
		return fmt.Errorf("message body is too long (max %d characters)", maxLen)
	}
	if !utf8.ValidString(body) {
		return fmt.Errorf("message body contains invalid characters")
	}
	return nil
}

// ValidateTargetURL validates a restream target URL from an ingest config frame
func ValidateTargetURL(urlStr string) error {
	if urlStr == "" {
		return nil // target is optional
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "rtmp" && u.Scheme != "rtmps" && u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme (must be rtmp, rtmps, http, or https)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateBitrate validates bitrate value
func ValidateBitrate(bitrate int) error {
	if bitrate < 100 {
		return fmt.Errorf("bitrate must be at least 100 kbps")
	}
	if bitrate > 10000 {
		return fmt.Errorf("bitrate is too high (max 10000 kbps)")
	}
	return nil
}

// ValidateStreamTitle validates a stream title
func ValidateStreamTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("stream title is required")
	}
	if utf8.RuneCountInString(title) > 100 {
		return fmt.Errorf("stream title is too long (max 100 characters)")
	}
	if !utf8.ValidString(title) {
		return fmt.Errorf("stream title contains invalid characters")
	}
	return nil
}
