package tokenabi_test

import (
	"context"
	"testing"

	"github.com/goware/logger"
	"github.com/hyperledger/firefly-tokens-connector/abitype"
	"github.com/hyperledger/firefly-tokens-connector/poollocator"
	"github.com/hyperledger/firefly-tokens-connector/tokenabi"
	"github.com/hyperledger/firefly-tokens-connector/tokendto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubQuerier struct {
	result any
	err    error
}

func (s stubQuerier) Query(ctx context.Context, to string, method abitype.Method, params []any) (any, error) {
	return s.result, s.err
}

func newMapper(t *testing.T) *tokenabi.Mapper {
	t.Helper()
	m, err := tokenabi.NewMapper(stubQuerier{result: true}, logger.NewLogger(logger.LogLevel_WARN))
	require.NoError(t, err)
	return m
}

func TestGetTokenSchemaTruthTable(t *testing.T) {
	assert.Equal(t, poollocator.SchemaERC20NoData, tokenabi.GetTokenSchema(true, false))
	assert.Equal(t, poollocator.SchemaERC20WithData, tokenabi.GetTokenSchema(true, true))
	assert.Equal(t, poollocator.SchemaERC721NoData, tokenabi.GetTokenSchema(false, false))
	assert.Equal(t, poollocator.SchemaERC721WithData, tokenabi.GetTokenSchema(false, true))
}

func TestMintERC20WithDataSelectsMintWithData(t *testing.T) {
	m := newMapper(t)
	method, params, err := m.GetMethodAndParams(poollocator.SchemaERC20WithData, tokendto.TokenMint{
		To: "0x123", Amount: "10", Data: "test",
	})
	require.NoError(t, err)
	assert.Equal(t, "mintWithData", method.Name)
	assert.Equal(t, []any{"0x123", "10", "0x74657374"}, params)
}

func TestMintERC721PrefersURIThenDataThenBase(t *testing.T) {
	m := newMapper(t)

	method, params, err := m.GetMethodAndParams(poollocator.SchemaERC721WithData, tokendto.TokenMint{
		To: "0xabc", TokenIndex: "1", URI: "ipfs://x",
	})
	require.NoError(t, err)
	assert.Equal(t, "mintWithURI", method.Name)
	assert.Equal(t, []any{"0xabc", "1", "0x00", "ipfs://x"}, params)

	// Without mintWithURI in the ABI, the 3-arg mintWithData is next.
	var noURI []abitype.Method
	for _, am := range tokenabi.SchemaABI(poollocator.SchemaERC721WithData) {
		if am.Name != "mintWithURI" {
			noURI = append(noURI, am)
		}
	}
	method, params, err = tokenabi.ResolveMethod(noURI, tokenabi.MintCandidates(false), tokendto.TokenMint{
		To: "0xabc", TokenIndex: "1",
	})
	require.NoError(t, err)
	assert.Equal(t, "mintWithData", method.Name)
	assert.Equal(t, []any{"0xabc", "1", "0x00"}, params)

	method, _, err = m.GetMethodAndParams(poollocator.SchemaERC721NoData, tokendto.TokenMint{
		To: "0xabc", TokenIndex: "1",
	})
	require.NoError(t, err)
	assert.Equal(t, "mint", method.Name)
}

func TestApproveERC721TokenIndexSetVsUnset(t *testing.T) {
	m := newMapper(t)

	method, params, err := m.GetApprovalMethodAndParams(poollocator.SchemaERC721WithData, tokendto.TokenApproval{
		Operator: "operator",
		Approved: true,
		Config:   tokendto.ApprovalConfig{TokenIndex: "5"},
	})
	require.NoError(t, err)
	assert.Equal(t, "approveWithData", method.Name)
	assert.Equal(t, []any{"operator", "5", "0x00"}, params)

	method, params, err = m.GetApprovalMethodAndParams(poollocator.SchemaERC721WithData, tokendto.TokenApproval{
		Operator: "operator",
		Approved: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "setApprovalForAllWithData", method.Name)
	assert.Equal(t, []any{"operator", true, "0x00"}, params)
}

func TestApproveERC20AllowanceDefaults(t *testing.T) {
	m := newMapper(t)

	_, params, err := m.GetApprovalMethodAndParams(poollocator.SchemaERC20WithData, tokendto.TokenApproval{
		Operator: "op", Approved: false,
	})
	require.NoError(t, err)
	assert.Equal(t, "0", params[1])

	_, params, err = m.GetApprovalMethodAndParams(poollocator.SchemaERC20WithData, tokendto.TokenApproval{
		Operator: "op", Approved: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "115792089237316195423570985008687907853269984665640564039457584007913129639935", params[1])
}

func TestEverySchemaEveryOperationResolves(t *testing.T) {
	m := newMapper(t)
	schemas := []string{
		poollocator.SchemaERC20NoData,
		poollocator.SchemaERC20WithData,
		poollocator.SchemaERC721NoData,
		poollocator.SchemaERC721WithData,
	}

	for _, schema := range schemas {
		fungible := schema == poollocator.SchemaERC20NoData || schema == poollocator.SchemaERC20WithData

		mintDTO := tokendto.TokenMint{To: "0x1"}
		if fungible {
			mintDTO.Amount = "1"
		} else {
			mintDTO.TokenIndex = "1"
		}
		_, _, err := m.GetMethodAndParams(schema, mintDTO)
		require.NoError(t, err, "mint on %s", schema)

		transferDTO := tokendto.TokenTransfer{From: "0x1", To: "0x2"}
		if fungible {
			transferDTO.Amount = "1"
		} else {
			transferDTO.TokenIndex = "1"
		}
		_, _, err = m.GetTransferMethodAndParams(schema, transferDTO)
		require.NoError(t, err, "transfer on %s", schema)

		burnDTO := tokendto.TokenBurn{From: "0x1"}
		if fungible {
			burnDTO.Amount = "1"
		} else {
			burnDTO.TokenIndex = "1"
		}
		_, _, err = m.GetBurnMethodAndParams(schema, burnDTO)
		require.NoError(t, err, "burn on %s", schema)

		approveDTO := tokendto.TokenApproval{Operator: "0x3", Approved: true}
		if !fungible {
			approveDTO.Config.TokenIndex = "1"
		}
		_, _, err = m.GetApprovalMethodAndParams(schema, approveDTO)
		require.NoError(t, err, "approve on %s", schema)
	}
}

func TestSupportsInterfaceCachesFailureAsFalse(t *testing.T) {
	q := &countingQuerier{err: assertErr{}}
	m, err := tokenabi.NewMapper(q, logger.NewLogger(logger.LogLevel_WARN))
	require.NoError(t, err)
	assert.False(t, m.SupportsInterface(context.Background(), "0xabc", tokenabi.IIDERC20WithData))
	assert.False(t, m.SupportsInterface(context.Background(), "0xabc", tokenabi.IIDERC20WithData))
	assert.Equal(t, 1, q.calls, "the failed probe must be served from the cache the second time")
}

type assertErr struct{}

func (assertErr) Error() string { return "rpc failure" }

// countingQuerier records how many probes actually reach the chain.
type countingQuerier struct {
	err   error
	calls int
}

func (c *countingQuerier) Query(ctx context.Context, to string, method abitype.Method, params []any) (any, error) {
	c.calls++
	return nil, c.err
}
