// Package tokenlistener is a pure transformer from a raw on-chain event to
// a semantic token event. It enriches non-fungible transfers with a tokenURI
// lookup via the ABI mapper and blockchain connector, but never mutates state of
// its own: given the same raw event and chain state, it always produces
// the same semantic event (or none).
package tokenlistener

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hyperledger/firefly-tokens-connector/abitype"
	"github.com/hyperledger/firefly-tokens-connector/poollocator"
	"github.com/hyperledger/firefly-tokens-connector/tokenabi"
	"github.com/hyperledger/firefly-tokens-connector/tokendto"
	"github.com/hyperledger/firefly-tokens-connector/tokenhex"
)

// zeroAddress is the canonical "no address" sentinel minted/burned
// transfers are keyed off of.
const zeroAddress = "0x0000000000000000000000000000000000000000"

// Canonical event signatures this listener knows how to classify.
const (
	SigTokenPoolCreation = "TokenPoolCreation(address,string,string,bool,bytes)"
	SigTransfer          = "Transfer(address,address,uint256)"
	SigApproval          = "Approval(address,address,uint256)"
	SigApprovalForAll    = "ApprovalForAll(address,address,bool)"
)

// Querier is the connector capability this package needs: a synchronous
// contract read, used for best-effort tokenURI enrichment.
type Querier interface {
	Query(ctx context.Context, to string, method abitype.Method, params []any) (any, error)
}

var tokenURIMethod = abitype.Method{
	Name:            "tokenURI",
	Type:            "function",
	StateMutability: "view",
	Inputs:          []abitype.Input{{Name: "tokenId", Type: "uint256"}},
	Outputs:         []abitype.Input{{Type: "string"}},
}

// Listener transforms RawEvents into SemanticTokenEvents.
type Listener struct {
	mapper  *tokenabi.Mapper
	querier Querier
	topic   string
}

// New builds a Listener. topic is the configured subscription-name prefix,
// needed to recover a pool locator from an event's SubID.
func New(mapper *tokenabi.Mapper, querier Querier, topic string) *Listener {
	return &Listener{mapper: mapper, querier: querier, topic: topic}
}

// Transform classifies one raw event into a semantic token event. It
// returns ok=false when the event should be dropped silently — because its
// signature is not in the dispatch table, because its pool locator cannot
// be resolved, or because it is an undefined-source transfer (from and to
// both the zero address).
func (l *Listener) Transform(ctx context.Context, raw tokendto.RawEvent) (tokendto.SemanticTokenEvent, bool, error) {
	signature := trimSignature(raw.Signature)

	switch signature {
	case SigTokenPoolCreation:
		return l.transformPoolCreation(raw)
	case SigTransfer:
		return l.transformTransfer(ctx, raw)
	case SigApproval:
		return l.transformApproval(raw)
	case SigApprovalForAll:
		return l.transformApprovalForAll(raw)
	default:
		return tokendto.SemanticTokenEvent{}, false, nil
	}
}

// TransformBatch transforms every raw event in a batch concurrently — the
// tokenURI lookups are the only part worth parallelizing — but assembles
// the results back in their original order, so downstream consumers still
// see one strictly ordered slice per batch.
func (l *Listener) TransformBatch(ctx context.Context, raw []tokendto.RawEvent) ([]tokendto.SemanticTokenEvent, error) {
	results := make([]tokendto.SemanticTokenEvent, len(raw))
	ok := make([]bool, len(raw))

	g, gctx := errgroup.WithContext(ctx)
	for i, ev := range raw {
		i, ev := i, ev
		g.Go(func() error {
			out, matched, err := l.Transform(gctx, ev)
			if err != nil {
				return err
			}
			results[i], ok[i] = out, matched
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]tokendto.SemanticTokenEvent, 0, len(results))
	for i, matched := range ok {
		if matched {
			out = append(out, results[i])
		}
	}
	return out, nil
}

func trimSignature(sig string) string {
	if idx := strings.Index(sig, ":"); idx >= 0 {
		return sig[idx+1:]
	}
	return sig
}

func (l *Listener) poolLocatorFor(raw tokendto.RawEvent) (poollocator.Locator, string, bool) {
	name, err := poollocator.UnpackSubscriptionName(l.topic, raw.SubID)
	if err != nil {
		return poollocator.Locator{}, "", false
	}
	loc := poollocator.Unpack(name.PoolLocator)
	if err := poollocator.Validate(loc); err != nil {
		return poollocator.Locator{}, "", false
	}
	return loc, name.PoolData, true
}

func (l *Listener) transformTransfer(ctx context.Context, raw tokendto.RawEvent) (tokendto.SemanticTokenEvent, bool, error) {
	loc, poolData, ok := l.poolLocatorFor(raw)
	if !ok {
		return tokendto.SemanticTokenEvent{}, false, nil
	}

	from, _ := raw.Data["from"].(string)
	to, _ := raw.Data["to"].(string)

	isMintSource := strings.EqualFold(from, zeroAddress)
	isBurnDest := strings.EqualFold(to, zeroAddress)

	if isMintSource && isBurnDest {
		// Undefined source: neither a mint nor a genuine transfer.
		return tokendto.SemanticTokenEvent{}, false, nil
	}

	eventName := tokendto.EventTokenTransfer
	switch {
	case isMintSource:
		eventName = tokendto.EventTokenMint
	case isBurnDest:
		eventName = tokendto.EventTokenBurn
	}

	data := tokendto.TokenTransferEvent{
		ID:          eventID(raw),
		PoolLocator: poollocator.Pack(loc),
		PoolData:    poolData,
		Signer:      raw.InputSigner,
		Data:        decodeInputData(raw),
		Blockchain:  blockchainInfo(raw),
	}
	if eventName != tokendto.EventTokenMint {
		data.From = from
	}
	if eventName != tokendto.EventTokenBurn {
		data.To = to
	}

	if loc.IsFungible() {
		value, _ := raw.Data["value"].(string)
		data.Amount = value
	} else {
		data.Amount = "1"
		tokenID, _ := raw.Data["tokenId"].(string)
		data.TokenIndex = tokenID

		if eventName != tokendto.EventTokenBurn && l.mapper.SupportsNFTUri(ctx, raw.Address) {
			data.URI = l.resolveTokenURI(ctx, raw.Address, tokenID)
		}
	}

	return tokendto.SemanticTokenEvent{Event: eventName, Data: data}, true, nil
}

// resolveTokenURI is a best-effort lookup: any failure yields an empty URI
// rather than stalling the batch.
func (l *Listener) resolveTokenURI(ctx context.Context, address, tokenID string) string {
	result, err := l.querier.Query(ctx, address, tokenURIMethod, []any{tokenID})
	if err != nil {
		return ""
	}
	uri, _ := result.(string)
	return uri
}

func (l *Listener) transformApproval(raw tokendto.RawEvent) (tokendto.SemanticTokenEvent, bool, error) {
	loc, poolData, ok := l.poolLocatorFor(raw)
	if !ok {
		return tokendto.SemanticTokenEvent{}, false, nil
	}

	owner, _ := raw.Data["owner"].(string)
	spender, _ := raw.Data["spender"].(string)

	data := tokendto.TokenApprovalEvent{
		ID:          eventID(raw),
		PoolLocator: poollocator.Pack(loc),
		PoolData:    poolData,
		Signer:      owner,
		Operator:    spender,
		Approved:    true,
		Data:        decodeInputData(raw),
		Blockchain:  blockchainInfo(raw),
	}

	if loc.IsFungible() {
		value, _ := raw.Data["value"].(string)
		data.Subject = value
		data.Approved = value != "0"
	} else {
		tokenID, _ := raw.Data["tokenId"].(string)
		data.TokenIndex = tokenID
		approved, _ := raw.Data["approved"].(string)
		data.Approved = approved != "" && !strings.EqualFold(approved, zeroAddress)
	}

	return tokendto.SemanticTokenEvent{Event: tokendto.EventTokenApproval, Data: data}, true, nil
}

func (l *Listener) transformApprovalForAll(raw tokendto.RawEvent) (tokendto.SemanticTokenEvent, bool, error) {
	loc, poolData, ok := l.poolLocatorFor(raw)
	if !ok {
		return tokendto.SemanticTokenEvent{}, false, nil
	}

	owner, _ := raw.Data["owner"].(string)
	operator, _ := raw.Data["operator"].(string)
	approved, _ := raw.Data["approved"].(bool)

	data := tokendto.TokenApprovalEvent{
		ID:          eventID(raw),
		PoolLocator: poollocator.Pack(loc),
		PoolData:    poolData,
		Signer:      owner,
		Operator:    operator,
		Approved:    approved,
		Data:        decodeInputData(raw),
		Blockchain:  blockchainInfo(raw),
	}

	return tokendto.SemanticTokenEvent{Event: tokendto.EventTokenApproval, Data: data}, true, nil
}

func (l *Listener) transformPoolCreation(raw tokendto.RawEvent) (tokendto.SemanticTokenEvent, bool, error) {
	contractAddress, _ := raw.Data["contractAddress"].(string)
	isFungible, _ := raw.Data["isFungible"].(bool)

	loc := poollocator.Locator{
		Address: strings.ToLower(contractAddress),
		Type:    poollocator.TypeFungible,
	}
	if !isFungible {
		loc.Type = poollocator.TypeNonFungible
	}
	// Schema for a factory-created pool is always the data-capable
	// variant: the factory only ever deploys "WithData" contracts.
	loc.Schema = tokenabi.GetTokenSchema(isFungible, true)

	data := map[string]any{
		"poolLocator": poollocator.Pack(loc),
		"type":        loc.Type,
		"blockchain":  blockchainInfo(raw),
	}
	return tokendto.SemanticTokenEvent{Event: tokendto.EventTokenPool, Data: data}, true, nil
}

func decodeInputData(raw tokendto.RawEvent) string {
	if raw.InputArgs == nil {
		return ""
	}
	hexData, _ := raw.InputArgs["data"].(string)
	if hexData == "" {
		return ""
	}
	return tokenhex.Decode(hexData)
}

// eventID builds the canonical blockNumber/transactionIndex/logIndex
// identifier: each component zero-padded, transactionIndex converted from
// its (possibly hex) wire form to decimal first.
func eventID(raw tokendto.RawEvent) string {
	blockNumber := parseNumeric(raw.BlockNumber)
	txIndex := parseNumeric(raw.TransactionIndex)
	logIndex := parseNumeric(raw.LogIndex)

	return fmt.Sprintf("%s/%s/%s",
		zeroPad(blockNumber, 12),
		zeroPad(txIndex, 6),
		zeroPad(logIndex, 6),
	)
}

func parseNumeric(s string) *big.Int {
	if s == "" {
		return big.NewInt(0)
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, ok := new(big.Int).SetString(s[2:], 16)
		if !ok {
			return big.NewInt(0)
		}
		return v
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return v
}

func zeroPad(v *big.Int, width int) string {
	s := v.String()
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

func blockchainInfo(raw tokendto.RawEvent) tokendto.BlockchainInfo {
	return tokendto.BlockchainInfo{
		ID:        eventID(raw),
		Name:      trimSignature(raw.Signature),
		Location:  fmt.Sprintf("address=%s", raw.Address),
		Signature: trimSignature(raw.Signature),
		Timestamp: raw.Timestamp,
		Output:    raw.Data,
		Info: map[string]any{
			"address":          raw.Address,
			"blockNumber":      raw.BlockNumber,
			"transactionIndex": raw.TransactionIndex,
			"transactionHash":  raw.TransactionHash,
			"logIndex":         raw.LogIndex,
		},
	}
}
