package tokenabi

import (
	"context"
	"fmt"

	memcache "github.com/goware/cachestore-mem"
	cachestore "github.com/goware/cachestore2"
	"github.com/goware/logger"
	"github.com/hyperledger/firefly-tokens-connector/abitype"
	"github.com/hyperledger/firefly-tokens-connector/poollocator"
	"github.com/hyperledger/firefly-tokens-connector/tokendto"
)

// capabilityCacheSize bounds the process-wide supportsInterface cache.
const capabilityCacheSize = 500

// Querier is the subset of the blockchain connector the mapper needs to
// run a supportsInterface probe. Structural typing against
// *chainconn.Connector means this package never has to import it.
type Querier interface {
	Query(ctx context.Context, to string, method abitype.Method, params []any) (any, error)
}

// Mapper composes the ABI schema registry, the per-operation signature
// tables, and a capability-probe cache to answer two questions: which
// schema does a contract speak, and which concrete method+params does an
// abstract operation resolve to.
type Mapper struct {
	log      logger.Logger
	querier  Querier
	supports cachestore.Store[bool]
}

// NewMapper builds a Mapper backed by an in-memory, 500-entry LRU for
// capability probes. The cache is a single init-once resource: duplicate
// probes racing for the same key are harmless since they resolve to the
// same value.
func NewMapper(querier Querier, log logger.Logger) (*Mapper, error) {
	cache, err := memcache.NewCacheWithSize[bool](capabilityCacheSize)
	if err != nil {
		return nil, fmt.Errorf("tokenabi: failed to build capability cache: %w", err)
	}
	return &Mapper{log: log, querier: querier, supports: cache}, nil
}

var supportsInterfaceMethod = abitype.Method{
	Name:            "supportsInterface",
	Type:            "function",
	StateMutability: "view",
	Inputs:          []abitype.Input{{Name: "interfaceId", Type: "bytes4"}},
	Outputs:         []abitype.Input{{Type: "bool"}},
}

// SupportsInterface returns the cached result of an ERC-165
// supportsInterface(iid) probe, issuing the RPC query on a cache miss. A
// probe failure is logged at info and cached as false ("not supported");
// it never propagates to the caller, per the connector's failure
// semantics for capability probes.
func (m *Mapper) SupportsInterface(ctx context.Context, address, iid string) bool {
	key := address + ":" + iid

	if cached, ok, _ := m.supports.Get(ctx, key); ok {
		return cached
	}

	supported := m.probe(ctx, address, iid)
	_ = m.supports.Set(ctx, key, supported)
	return supported
}

func (m *Mapper) probe(ctx context.Context, address, iid string) bool {
	result, err := m.querier.Query(ctx, address, supportsInterfaceMethod, []any{iid})
	if err != nil {
		m.log.Infof("tokenabi: supportsInterface(%s) probe on %s failed, treating as unsupported: %v", iid, address, err)
		return false
	}
	supported, _ := result.(bool)
	return supported
}

// SupportsData reports whether a contract implements the "WithData"
// extension for its token family.
func (m *Mapper) SupportsData(ctx context.Context, address string, isFungible bool) bool {
	if isFungible {
		return m.SupportsInterface(ctx, address, IIDERC20WithData)
	}
	return m.SupportsInterface(ctx, address, IIDERC721WithURI) ||
		m.SupportsInterface(ctx, address, IIDERC721LegacyData)
}

// SupportsNFTUri reports whether an ERC-721 contract implements the URI
// extension.
//
// NOTE: like every other supportsInterface lookup, this probe is cached
// under "address:iid". It shares the cache with SupportsFactoryUri, but the
// two probe different interface ids, so they never share an entry.
func (m *Mapper) SupportsNFTUri(ctx context.Context, address string) bool {
	return m.SupportsInterface(ctx, address, IIDERC721WithURI)
}

// SupportsFactoryUri reports whether the configured factory contract
// deploys URI-capable pools.
func (m *Mapper) SupportsFactoryUri(ctx context.Context, factoryAddress string) bool {
	return m.SupportsInterface(ctx, factoryAddress, IIDTokenFactory)
}

// GetMethodAndParams resolves the (method, params) pair for a mint.
func (m *Mapper) GetMethodAndParams(schema string, dto tokendto.TokenMint) (abitype.Method, []any, error) {
	isFungible := schemaIsFungible(schema)
	return ResolveMethod(SchemaABI(schema), MintCandidates(isFungible), dto)
}

// GetTransferMethodAndParams resolves the (method, params) pair for a
// transfer.
func (m *Mapper) GetTransferMethodAndParams(schema string, dto tokendto.TokenTransfer) (abitype.Method, []any, error) {
	isFungible := schemaIsFungible(schema)
	return ResolveMethod(SchemaABI(schema), TransferCandidates(isFungible), dto)
}

// GetBurnMethodAndParams resolves the (method, params) pair for a burn.
func (m *Mapper) GetBurnMethodAndParams(schema string, dto tokendto.TokenBurn) (abitype.Method, []any, error) {
	isFungible := schemaIsFungible(schema)
	return ResolveMethod(SchemaABI(schema), BurnCandidates(isFungible), dto)
}

// GetApprovalMethodAndParams resolves the (method, params) pair for an
// approval. ERC-721 pools branch on whether config.tokenIndex is set:
// set selects the per-token approve family, unset selects
// setApprovalForAll.
func (m *Mapper) GetApprovalMethodAndParams(schema string, dto tokendto.TokenApproval) (abitype.Method, []any, error) {
	if schemaIsFungible(schema) {
		return ResolveMethod(SchemaABI(schema), ApproveCandidates(), dto)
	}
	if dto.Config.TokenIndex != "" {
		return ResolveMethod(SchemaABI(schema), TokenApproveCandidates(), dto)
	}
	return ResolveMethod(SchemaABI(schema), SetApprovalForAllCandidates(), dto)
}

func schemaIsFungible(schema string) bool {
	return schema == poollocator.SchemaERC20NoData || schema == poollocator.SchemaERC20WithData
}
