// Package tokensvc is the Tokens Orchestrator: the public operation
// surface (createPool, activatePool, mint, transfer, burn, approval,
// balance, getReceipt) that enforces the connector's invariants and
// dispatches to the ABI mapper and blockchain connector.
package tokensvc

import (
	"context"
	"net/http"
	"strconv"

	"github.com/goware/logger"

	"github.com/hyperledger/firefly-tokens-connector/abitype"
	"github.com/hyperledger/firefly-tokens-connector/chainconn"
	"github.com/hyperledger/firefly-tokens-connector/eventstream"
	"github.com/hyperledger/firefly-tokens-connector/poollocator"
	"github.com/hyperledger/firefly-tokens-connector/tokenabi"
	"github.com/hyperledger/firefly-tokens-connector/tokendto"
	"github.com/hyperledger/firefly-tokens-connector/tokenhex"
)

// Connector is the blockchain RPC surface the orchestrator needs.
type Connector interface {
	Query(ctx context.Context, to string, method abitype.Method, params []any) (any, error)
	SendTransaction(ctx context.Context, from, to, requestID string, method abitype.Method, params []any) (string, error)
	GetReceipt(ctx context.Context, id string) ([]byte, int, error)
}

var (
	_ Connector = (*chainconn.Connector)(nil)
)

var nameMethod = abitype.Method{Name: "name", Type: "function", StateMutability: "view", Outputs: []abitype.Input{{Type: "string"}}}
var symbolMethod = abitype.Method{Name: "symbol", Type: "function", StateMutability: "view", Outputs: []abitype.Input{{Type: "string"}}}
var decimalsMethod = abitype.Method{Name: "decimals", Type: "function", StateMutability: "view", Outputs: []abitype.Input{{Type: "uint8"}}}
var baseTokenURIMethod = abitype.Method{Name: "baseTokenUri", Type: "function", StateMutability: "view", Outputs: []abitype.Input{{Type: "string"}}}
var balanceOfMethod = abitype.Method{Name: "balanceOf", Type: "function", StateMutability: "view", Inputs: []abitype.Input{{Name: "account", Type: "address"}}, Outputs: []abitype.Input{{Type: "uint256"}}}
var balanceOfTokenMethod = abitype.Method{Name: "balanceOf", Type: "function", StateMutability: "view", Inputs: []abitype.Input{{Name: "account", Type: "address"}, {Name: "id", Type: "uint256"}}, Outputs: []abitype.Input{{Type: "uint256"}}}

// Service is the Tokens Orchestrator.
type Service struct {
	log            logger.Logger
	connector      Connector
	mapper         *tokenabi.Mapper
	eventSvc       eventstream.Service
	topic          string
	factoryAddress string
}

// New builds a Service. factoryAddress may be empty; createPool's
// factory-deployment branch then always fails validation.
func New(connector Connector, mapper *tokenabi.Mapper, eventSvc eventstream.Service, topic, factoryAddress string, log logger.Logger) *Service {
	return &Service{
		log:            log,
		connector:      connector,
		mapper:         mapper,
		eventSvc:       eventSvc,
		topic:          topic,
		factoryAddress: factoryAddress,
	}
}

func parseLocator(s string) (poollocator.Locator, error) {
	loc := poollocator.Unpack(s)
	if err := poollocator.Validate(loc); err != nil {
		return poollocator.Locator{}, &ValidationError{Message: err.Error()}
	}
	return loc, nil
}

// validateNonFungibleAmount enforces invariant 4: a nonfungible op with an
// amount other than "1" (or unset) must be rejected before any RPC.
func validateNonFungibleAmount(isFungible bool, amount string) error {
	if isFungible || amount == "" || amount == "1" {
		return nil
	}
	return validationErrorf("amount for nonfungible tokens must be 1")
}

// CreatePool implements both createPool branches: against an existing
// deployed contract, or via the configured factory.
func (s *Service) CreatePool(ctx context.Context, dto tokendto.TokenPool) (any, error) {
	if dto.Config.Address != "" {
		return s.createPoolFromExisting(ctx, dto)
	}
	return s.createPoolFromFactory(ctx, dto)
}

func (s *Service) createPoolFromExisting(ctx context.Context, dto tokendto.TokenPool) (tokendto.TokenPoolEvent, error) {
	address := dto.Config.Address
	isFungible := dto.Type == poollocator.TypeFungible

	withData := s.mapper.SupportsData(ctx, address, isFungible)
	var withURI bool
	if !isFungible {
		withURI = s.mapper.SupportsNFTUri(ctx, address)
	}
	schema := tokenabi.GetTokenSchema(isFungible, withData || withURI)

	onChainName, err := s.queryString(ctx, address, nameMethod, nil)
	if err != nil {
		return tokendto.TokenPoolEvent{}, upstreamErrorf("failed to read contract name: %v", err)
	}
	onChainSymbol, err := s.queryString(ctx, address, symbolMethod, nil)
	if err != nil {
		return tokendto.TokenPoolEvent{}, upstreamErrorf("failed to read contract symbol: %v", err)
	}
	if dto.Symbol != "" && dto.Symbol != onChainSymbol {
		return tokendto.TokenPoolEvent{}, validationErrorf("requested symbol %q does not match on-chain symbol %q", dto.Symbol, onChainSymbol)
	}

	var decimals *int
	if isFungible {
		raw, err := s.connector.Query(ctx, address, decimalsMethod, nil)
		if err != nil {
			return tokendto.TokenPoolEvent{}, upstreamErrorf("failed to read contract decimals: %v", err)
		}
		d := parseDecimals(raw)
		decimals = &d
	}

	var baseURI string
	if !isFungible && withURI {
		baseURI, _ = s.queryString(ctx, address, baseTokenURIMethod, nil)
	}

	loc := poollocator.Locator{Address: address, Schema: schema, Type: dto.Type}
	standard := "ERC20"
	if !isFungible {
		standard = "ERC721"
	}

	return tokendto.TokenPoolEvent{
		PoolLocator: poollocator.Pack(loc),
		Standard:    standard,
		Type:        dto.Type,
		Decimals:    decimals,
		Symbol:      onChainSymbol,
		Info: tokendto.PoolInfo{
			Name:    onChainName,
			Address: address,
			Schema:  schema,
			BaseURI: baseURI,
		},
	}, nil
}

func (s *Service) createPoolFromFactory(ctx context.Context, dto tokendto.TokenPool) (tokendto.AsyncAck, error) {
	if s.factoryAddress == "" {
		return tokendto.AsyncAck{}, validationErrorf("no factory contract configured and no existing contract address supplied")
	}
	isFungible := dto.Type == poollocator.TypeFungible

	params := []any{dto.Name, dto.Symbol, isFungible, tokenhex.Encode(dto.Data)}
	if s.mapper.SupportsFactoryUri(ctx, s.factoryAddress) {
		params = append(params, dto.Config.URI)
	}

	method, ok := findFactoryMethod(len(params))
	if !ok {
		return tokendto.AsyncAck{}, notFoundf("no factory method matches the requested pool parameters")
	}

	id, err := s.connector.SendTransaction(ctx, dto.Signer, s.factoryAddress, dto.RequestID, method, params)
	if err != nil {
		return tokendto.AsyncAck{}, translateConnectorErr(err)
	}
	return tokendto.AsyncAck{ID: id}, nil
}

func findFactoryMethod(paramCount int) (abitype.Method, bool) {
	wantName := "createPool"
	if paramCount == 5 {
		wantName = "createPoolWithUri"
	}
	for _, m := range tokenabi.FactoryABI() {
		if m.Name == wantName && len(m.Inputs) == paramCount {
			return m, true
		}
	}
	return abitype.Method{}, false
}

// ActivatePool registers event-stream subscriptions for a pool's Transfer,
// Approval, and (nonfungible-only) ApprovalForAll events.
func (s *Service) ActivatePool(ctx context.Context, dto tokendto.TokenPoolActivate) (tokendto.TokenPoolEvent, error) {
	loc, err := parseLocator(dto.PoolLocator)
	if err != nil {
		return tokendto.TokenPoolEvent{}, err
	}

	fromBlock := dto.Config.BlockNumber
	if fromBlock == "" {
		fromBlock = "0"
	}

	stream, err := s.eventSvc.EnsureStream(ctx, s.topic)
	if err != nil {
		return tokendto.TokenPoolEvent{}, upstreamErrorf("failed to ensure event stream: %v", err)
	}

	events := []string{"Transfer", "Approval"}
	if !loc.IsFungible() {
		events = append(events, "ApprovalForAll")
	}

	schemaMethods := tokenabi.SchemaABI(loc.Schema)
	for _, eventName := range events {
		eventABI, ok := findEventABI(schemaMethods, eventName)
		if !ok {
			continue
		}
		subName := poollocator.PackSubscriptionName(s.topic, poollocator.SubscriptionName{
			PoolLocator: dto.PoolLocator,
			Event:       eventName,
		})
		if _, err := s.eventSvc.GetOrCreateSubscription(ctx, stream, eventABI, subName, loc.Address, fromBlock); err != nil {
			return tokendto.TokenPoolEvent{}, upstreamErrorf("failed to subscribe to %s: %v", eventName, err)
		}
	}

	standard := "ERC20"
	if !loc.IsFungible() {
		standard = "ERC721"
	}
	return tokendto.TokenPoolEvent{
		PoolLocator: poollocator.Pack(loc),
		Standard:    standard,
		Type:        loc.Type,
		Info: tokendto.PoolInfo{
			Address: loc.Address,
			Schema:  loc.Schema,
		},
	}, nil
}

func findEventABI(methods []abitype.Method, name string) (abitype.Method, bool) {
	for _, m := range methods {
		if m.Type == "event" && m.Name == name {
			return m, true
		}
	}
	return abitype.Method{}, false
}

// Mint validates and submits a mint transaction.
func (s *Service) Mint(ctx context.Context, dto tokendto.TokenMint) (tokendto.AsyncAck, error) {
	loc, err := parseLocator(dto.PoolLocator)
	if err != nil {
		return tokendto.AsyncAck{}, err
	}
	if err := validateNonFungibleAmount(loc.IsFungible(), dto.Amount); err != nil {
		return tokendto.AsyncAck{}, err
	}
	if !loc.IsFungible() && dto.URI != "" && !s.mapper.SupportsNFTUri(ctx, loc.Address) {
		dto.URI = ""
	}

	method, params, err := s.mapper.GetMethodAndParams(loc.Schema, dto)
	if err != nil {
		return tokendto.AsyncAck{}, notFoundf("no suitable method for mint on schema %s: %v", loc.Schema, err)
	}
	id, err := s.connector.SendTransaction(ctx, dto.Signer, loc.Address, dto.RequestID, method, params)
	if err != nil {
		return tokendto.AsyncAck{}, translateConnectorErr(err)
	}
	return tokendto.AsyncAck{ID: id}, nil
}

// Transfer validates and submits a transfer transaction.
func (s *Service) Transfer(ctx context.Context, dto tokendto.TokenTransfer) (tokendto.AsyncAck, error) {
	loc, err := parseLocator(dto.PoolLocator)
	if err != nil {
		return tokendto.AsyncAck{}, err
	}
	if err := validateNonFungibleAmount(loc.IsFungible(), dto.Amount); err != nil {
		return tokendto.AsyncAck{}, err
	}

	method, params, err := s.mapper.GetTransferMethodAndParams(loc.Schema, dto)
	if err != nil {
		return tokendto.AsyncAck{}, notFoundf("no suitable method for transfer on schema %s: %v", loc.Schema, err)
	}
	id, err := s.connector.SendTransaction(ctx, dto.Signer, loc.Address, dto.RequestID, method, params)
	if err != nil {
		return tokendto.AsyncAck{}, translateConnectorErr(err)
	}
	return tokendto.AsyncAck{ID: id}, nil
}

// Burn validates and submits a burn transaction.
func (s *Service) Burn(ctx context.Context, dto tokendto.TokenBurn) (tokendto.AsyncAck, error) {
	loc, err := parseLocator(dto.PoolLocator)
	if err != nil {
		return tokendto.AsyncAck{}, err
	}
	if err := validateNonFungibleAmount(loc.IsFungible(), dto.Amount); err != nil {
		return tokendto.AsyncAck{}, err
	}

	method, params, err := s.mapper.GetBurnMethodAndParams(loc.Schema, dto)
	if err != nil {
		return tokendto.AsyncAck{}, notFoundf("no suitable method for burn on schema %s: %v", loc.Schema, err)
	}
	id, err := s.connector.SendTransaction(ctx, dto.Signer, loc.Address, dto.RequestID, method, params)
	if err != nil {
		return tokendto.AsyncAck{}, translateConnectorErr(err)
	}
	return tokendto.AsyncAck{ID: id}, nil
}

// Approval validates and submits an approve / setApprovalForAll
// transaction.
func (s *Service) Approval(ctx context.Context, dto tokendto.TokenApproval) (tokendto.AsyncAck, error) {
	loc, err := parseLocator(dto.PoolLocator)
	if err != nil {
		return tokendto.AsyncAck{}, err
	}

	method, params, err := s.mapper.GetApprovalMethodAndParams(loc.Schema, dto)
	if err != nil {
		return tokendto.AsyncAck{}, notFoundf("no suitable method for approval on schema %s: %v", loc.Schema, err)
	}
	id, err := s.connector.SendTransaction(ctx, dto.Signer, loc.Address, dto.RequestID, method, params)
	if err != nil {
		return tokendto.AsyncAck{}, translateConnectorErr(err)
	}
	return tokendto.AsyncAck{ID: id}, nil
}

// Balance issues a balanceOf query.
func (s *Service) Balance(ctx context.Context, q tokendto.BalanceQuery) (tokendto.BalanceResponse, error) {
	loc, err := parseLocator(q.PoolLocator)
	if err != nil {
		return tokendto.BalanceResponse{}, err
	}

	method := balanceOfMethod
	params := []any{q.Account}
	if !loc.IsFungible() && q.TokenIndex != "" {
		method = balanceOfTokenMethod
		params = append(params, q.TokenIndex)
	}

	result, err := s.connector.Query(ctx, loc.Address, method, params)
	if err != nil {
		return tokendto.BalanceResponse{}, translateConnectorErr(err)
	}
	balance, _ := result.(string)
	return tokendto.BalanceResponse{Balance: balance}, nil
}

// GetReceipt fetches a previously submitted transaction's outcome.
func (s *Service) GetReceipt(ctx context.Context, id string) ([]byte, error) {
	raw, status, err := s.connector.GetReceipt(ctx, id)
	if err != nil {
		return nil, translateConnectorErr(err)
	}
	if status == http.StatusNotFound {
		return nil, notFoundf("no receipt found for id %s", id)
	}
	if status < 200 || status > 299 {
		return nil, upstreamErrorf("receipt lookup for %s returned status %d", id, status)
	}
	return raw, nil
}

func (s *Service) queryString(ctx context.Context, address string, method abitype.Method, params []any) (string, error) {
	result, err := s.connector.Query(ctx, address, method, params)
	if err != nil {
		return "", err
	}
	str, _ := result.(string)
	return str, nil
}

func parseDecimals(raw any) int {
	switch v := raw.(type) {
	case string:
		n, _ := strconv.Atoi(v)
		return n
	case float64:
		return int(v)
	default:
		return 0
	}
}

// translateConnectorErr maps a chainconn.UpstreamError (or any other
// connector failure) onto the orchestrator's own error taxonomy.
func translateConnectorErr(err error) error {
	if upstream, ok := err.(*chainconn.UpstreamError); ok {
		return upstreamErrorf("%s", upstream.Message)
	}
	return upstreamErrorf("%s", err.Error())
}
