package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// GenerateSessionID generates a unique session ID
func GenerateSessionID() string {
	return fmt.Sprintf("sess_%s", uuid.NewString())
}

// GenerateMessageID generates a unique chat message ID
func GenerateMessageID() string {
	return uuid.NewString()
}

// GeneratePeerID generates a unique peer ID
func GeneratePeerID() string {
	return fmt.Sprintf("peer_%s", uuid.NewString())
}

// GenerateStreamKey generates an opaque publish credential.
func GenerateStreamKey() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
