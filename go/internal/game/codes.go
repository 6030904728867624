package game

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	sessionCodeRe = regexp.MustCompile(`^[A-F0-9]{6}$`)
	inviteCodeRe  = regexp.MustCompile(`^[A-F0-9]{8}$`)
)

// GenerateSessionCode returns a 6-character uppercase hex join code.
func GenerateSessionCode() string {
	return randomHex(3)
}

// GenerateInviteCode returns an 8-character uppercase hex invite code
// for private sessions.
func GenerateInviteCode() string {
	return randomHex(4)
}

// IsValidSessionCode reports whether code has the join-code format.
func IsValidSessionCode(code string) bool {
	return sessionCodeRe.MatchString(code)
}

// IsValidInviteCode reports whether code has the invite-code format.
func IsValidInviteCode(code string) bool {
	return inviteCodeRe.MatchString(code)
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand only fails when the platform entropy source is
		// broken; there is no sane fallback for join codes.
		panic(err)
	}
	return strings.ToUpper(hex.EncodeToString(b))
}
