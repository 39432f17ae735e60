package poollocator_test

import (
	"testing"

	"github.com/hyperledger/firefly-tokens-connector/poollocator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	l := poollocator.Locator{
		Address: "0x123456",
		Schema:  poollocator.SchemaERC20WithData,
		Type:    poollocator.TypeFungible,
	}
	packed := poollocator.Pack(l)
	assert.Equal(t, "address=0x123456&schema=ERC20WithData&type=fungible", packed)

	unpacked := poollocator.Unpack(packed)
	assert.Equal(t, l.Address, unpacked.Address)
	assert.Equal(t, l.Schema, unpacked.Schema)
	assert.Equal(t, l.Type, unpacked.Type)
	require.NoError(t, poollocator.Validate(unpacked))
}

func TestUnpackLegacyStandardKey(t *testing.T) {
	unpacked := poollocator.Unpack("address=0x12&standard=ERC20WithData&type=fungible")
	assert.Equal(t, "0x12", unpacked.Address)
	assert.Equal(t, "ERC20WithData", unpacked.Schema)
	assert.Equal(t, "fungible", unpacked.Type)
}

func TestUnpackPreservesUnknownAttributes(t *testing.T) {
	unpacked := poollocator.Unpack("address=0x1&schema=ERC721NoData&type=nonfungible&tokenIndex=5")
	require.Contains(t, unpacked.Extra, "tokenIndex")
	assert.Equal(t, "5", unpacked.Extra["tokenIndex"])
}

func TestValidateRejectsInconsistentType(t *testing.T) {
	err := poollocator.Validate(poollocator.Locator{Address: "0x1", Schema: poollocator.SchemaERC721NoData, Type: poollocator.TypeFungible})
	assert.Error(t, err)
}

func TestValidateRejectsMissingFields(t *testing.T) {
	assert.Error(t, poollocator.Validate(poollocator.Locator{}))
}

func TestSubscriptionNameRoundTrip(t *testing.T) {
	name := poollocator.SubscriptionName{
		PoolLocator: "address=0xabc&schema=ERC20WithData&type=fungible",
		Event:       "Transfer",
		PoolData:    "custom:pool:data",
	}
	packed := poollocator.PackSubscriptionName("tokens", name)

	unpacked, err := poollocator.UnpackSubscriptionName("tokens", packed)
	require.NoError(t, err)
	assert.Equal(t, name, unpacked)
}

func TestSubscriptionNameLegacyTwoSegmentForm(t *testing.T) {
	packed := "tokens:address=0xabc&schema=ERC20WithData&type=fungible:Transfer"
	unpacked, err := poollocator.UnpackSubscriptionName("tokens", packed)
	require.NoError(t, err)
	assert.Equal(t, "Transfer", unpacked.Event)
	assert.Equal(t, "", unpacked.PoolData)
}
