// Package poollocator codecs the opaque pool locator string that identifies
// an activated token pool, and the subscription name used to correlate
// upstream event-stream subscriptions back to a pool.
package poollocator

import (
	"fmt"
	"net/url"
	"strings"
)

// Standard schema tags. The truth table in the connector's ABI mapper
// decides which of these applies for a given (type, withData).
const (
	SchemaERC20NoData     = "ERC20NoData"
	SchemaERC20WithData   = "ERC20WithData"
	SchemaERC721NoData    = "ERC721NoData"
	SchemaERC721WithData  = "ERC721WithData"
	SchemaERC721LegacyData = "ERC721WithDataV1"
)

const (
	TypeFungible    = "fungible"
	TypeNonFungible = "nonfungible"
)

// Locator is the canonical descriptor of an activated token pool.
type Locator struct {
	Address string
	Schema  string
	Type    string

	// Extra holds any attribute this connector does not recognize, so it
	// survives an unpack/pack round trip without being interpreted.
	Extra map[string]string
}

// Pack serializes a locator in stable attribute order: address, schema, type.
func Pack(l Locator) string {
	v := url.Values{}
	v.Set("address", l.Address)
	v.Set("schema", l.Schema)
	v.Set("type", l.Type)
	for k, val := range l.Extra {
		v.Set(k, val)
	}
	// url.Values.Encode sorts keys alphabetically, which does not match the
	// address/schema/type order the wire format promises, so build by hand.
	var b strings.Builder
	fmt.Fprintf(&b, "address=%s&schema=%s&type=%s", url.QueryEscape(l.Address), url.QueryEscape(l.Schema), url.QueryEscape(l.Type))
	for k, val := range l.Extra {
		fmt.Fprintf(&b, "&%s=%s", url.QueryEscape(k), url.QueryEscape(val))
	}
	return b.String()
}

// Unpack parses a locator string. The legacy key "standard" is accepted as
// a synonym for "schema". Unknown attributes are preserved in Extra but
// otherwise ignored. An invalid input yields a Locator that fails Validate.
func Unpack(s string) Locator {
	l := Locator{}
	values, err := url.ParseQuery(s)
	if err != nil {
		return l
	}
	for k, vs := range values {
		if len(vs) == 0 {
			continue
		}
		v := vs[0]
		switch k {
		case "address":
			l.Address = v
		case "schema":
			l.Schema = v
		case "standard":
			if l.Schema == "" {
				l.Schema = v
			}
		case "type":
			l.Type = v
		default:
			if l.Extra == nil {
				l.Extra = map[string]string{}
			}
			l.Extra[k] = v
		}
	}
	return l
}

// Validate enforces the locator invariants: all three fields present, and
// type consistent with the schema family.
func Validate(l Locator) error {
	if l.Address == "" || l.Schema == "" || l.Type == "" {
		return fmt.Errorf("pool locator is missing address, schema, or type")
	}
	expectedType := TypeFungible
	if strings.HasPrefix(l.Schema, "ERC721") {
		expectedType = TypeNonFungible
	}
	if l.Type != expectedType {
		return fmt.Errorf("pool locator type %q is inconsistent with schema %q", l.Type, l.Schema)
	}
	return nil
}

// IsFungible reports whether the locator's type is fungible.
func (l Locator) IsFungible() bool {
	return l.Type == TypeFungible
}
