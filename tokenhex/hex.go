// Package tokenhex converts between UTF-8 strings and the lowercase
// hex-with-0x-prefix byte encoding expected by the EthConnect RPC gateway.
//
// The gateway rejects empty byte arguments, so the empty string is encoded
// to a single null byte rather than an empty hex string. This is a
// workaround for that gateway behavior and must round-trip exactly.
package tokenhex

import (
	"encoding/hex"
	"strings"
)

// emptySentinel is what an empty input encodes to, and what decodes back
// to an empty string. EthConnect rejects a bare "0x" byte argument.
const emptySentinel = "0x00"

// Encode converts s to a lowercase 0x-prefixed hex string. An empty input
// encodes to emptySentinel rather than "0x".
func Encode(s string) string {
	if s == "" {
		return emptySentinel
	}
	return "0x" + hex.EncodeToString([]byte(s))
}

// Decode inverts Encode. A missing or malformed "0x" prefix, or a prefix
// shorter than two hex digits, decodes to "". emptySentinel decodes to "".
func Decode(h string) string {
	if !strings.HasPrefix(h, "0x") {
		return ""
	}
	body := h[2:]
	if body == "" {
		return ""
	}
	raw, err := hex.DecodeString(body)
	if err != nil {
		return ""
	}
	if len(raw) == 1 && raw[0] == 0x00 {
		return ""
	}
	return string(raw)
}
