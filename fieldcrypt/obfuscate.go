package fieldcrypt

import (
	"encoding/base64"
	"errors"
	"strings"
)

const obfuscatedPrefix = "obf:"

// ErrNotObfuscated is returned by Deobfuscate for input without the "obf:" prefix.
var ErrNotObfuscated = errors.New("fieldcrypt: payload is not obfuscated")

// Obfuscate encodes s reversibly. It is NOT encryption.
func Obfuscate(s string) string {
	return obfuscatedPrefix + base64.StdEncoding.EncodeToString([]byte(s))
}

// Deobfuscate reverses Obfuscate.
func Deobfuscate(s string) (string, error) {
	if !IsObfuscated(s) {
		return "", ErrNotObfuscated
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(s, obfuscatedPrefix))
	if err != nil {
		return "", ErrNotObfuscated
	}
	return string(raw), nil
}

// IsObfuscated reports whether s was produced by Obfuscate.
func IsObfuscated(s string) bool {
	return strings.HasPrefix(s, obfuscatedPrefix)
}
