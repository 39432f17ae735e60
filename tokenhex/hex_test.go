package tokenhex_test

import (
	"testing"

	"github.com/hyperledger/firefly-tokens-connector/tokenhex"
	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []string{"", "test", "hello world", "0x00deadbeef", "a b c"}
	for _, s := range cases {
		enc := tokenhex.Encode(s)
		assert.Equal(t, s, tokenhex.Decode(enc), "round trip for %q", s)
	}
}

func TestEncodeEmptySentinel(t *testing.T) {
	assert.Equal(t, "0x00", tokenhex.Encode(""))
}

func TestDecodeSentinel(t *testing.T) {
	assert.Equal(t, "", tokenhex.Decode("0x00"))
}

func TestDecodeMalformed(t *testing.T) {
	assert.Equal(t, "", tokenhex.Decode(""))
	assert.Equal(t, "", tokenhex.Decode("deadbeef"))
	assert.Equal(t, "", tokenhex.Decode("0x"))
	assert.Equal(t, "", tokenhex.Decode("0xzz"))
}

func TestEncodeKnown(t *testing.T) {
	assert.Equal(t, "0x74657374", tokenhex.Encode("test"))
}
