package tokenabi

import (
	"math/big"

	"github.com/hyperledger/firefly-tokens-connector/tokendto"
	"github.com/hyperledger/firefly-tokens-connector/tokenhex"
)

// maxUint256 is the "unlimited" allowance ERC-20 approve falls back to when
// the caller approves without specifying an explicit allowance.
var maxUint256 = func() *big.Int {
	v := new(big.Int).Lsh(big.NewInt(1), 256)
	return v.Sub(v, big.NewInt(1))
}()

// Candidate is one entry of a prioritized per-operation signature table:
// a method name, its ordered input type vector, and a mapping function
// from a request DTO to the method's parameter array. Map returns ok=false
// when the DTO does not fit this candidate (e.g. an ERC-721 approve whose
// tokenIndex presence doesn't match what this candidate expects).
type Candidate[T any] struct {
	Name       string
	InputTypes []string
	Map        func(dto T) ([]any, bool)
}

// MintCandidates returns the prioritized mint signature table for a
// fungible or non-fungible schema.
func MintCandidates(isFungible bool) []Candidate[tokendto.TokenMint] {
	if isFungible {
		return []Candidate[tokendto.TokenMint]{
			{
				Name:       "mintWithData",
				InputTypes: []string{"address", "uint256", "bytes"},
				Map: func(dto tokendto.TokenMint) ([]any, bool) {
					return []any{dto.To, dto.Amount, tokenhex.Encode(dto.Data)}, true
				},
			},
			{
				Name:       "mint",
				InputTypes: []string{"address", "uint256"},
				Map: func(dto tokendto.TokenMint) ([]any, bool) {
					return []any{dto.To, dto.Amount}, true
				},
			},
		}
	}

	// Non-fungible: prefer the variant that carries the most information.
	// mintWithURI (4-arg) > mintWithData (3-arg) > base mint (2-arg).
	return []Candidate[tokendto.TokenMint]{
		{
			Name:       "mintWithURI",
			InputTypes: []string{"address", "uint256", "bytes", "string"},
			Map: func(dto tokendto.TokenMint) ([]any, bool) {
				return []any{dto.To, dto.TokenIndex, tokenhex.Encode(dto.Data), dto.URI}, true
			},
		},
		{
			Name:       "mintWithData",
			InputTypes: []string{"address", "uint256", "bytes"},
			Map: func(dto tokendto.TokenMint) ([]any, bool) {
				return []any{dto.To, dto.TokenIndex, tokenhex.Encode(dto.Data)}, true
			},
		},
		{
			Name:       "mint",
			InputTypes: []string{"address", "uint256"},
			Map: func(dto tokendto.TokenMint) ([]any, bool) {
				return []any{dto.To, dto.TokenIndex}, true
			},
		},
	}
}

// TransferCandidates returns the prioritized transfer signature table.
func TransferCandidates(isFungible bool) []Candidate[tokendto.TokenTransfer] {
	if isFungible {
		return []Candidate[tokendto.TokenTransfer]{
			{
				Name:       "transferWithData",
				InputTypes: []string{"address", "address", "uint256", "bytes"},
				Map: func(dto tokendto.TokenTransfer) ([]any, bool) {
					return []any{dto.From, dto.To, dto.Amount, tokenhex.Encode(dto.Data)}, true
				},
			},
			{
				Name:       "transferFrom",
				InputTypes: []string{"address", "address", "uint256"},
				Map: func(dto tokendto.TokenTransfer) ([]any, bool) {
					return []any{dto.From, dto.To, dto.Amount}, true
				},
			},
		}
	}

	return []Candidate[tokendto.TokenTransfer]{
		{
			Name:       "transferWithData",
			InputTypes: []string{"address", "address", "uint256", "bytes"},
			Map: func(dto tokendto.TokenTransfer) ([]any, bool) {
				return []any{dto.From, dto.To, dto.TokenIndex, tokenhex.Encode(dto.Data)}, true
			},
		},
		{
			Name:       "safeTransferFrom",
			InputTypes: []string{"address", "address", "uint256"},
			Map: func(dto tokendto.TokenTransfer) ([]any, bool) {
				return []any{dto.From, dto.To, dto.TokenIndex}, true
			},
		},
	}
}

// BurnCandidates returns the prioritized burn signature table.
func BurnCandidates(isFungible bool) []Candidate[tokendto.TokenBurn] {
	idField := func(dto tokendto.TokenBurn) string {
		if isFungible {
			return dto.Amount
		}
		return dto.TokenIndex
	}

	return []Candidate[tokendto.TokenBurn]{
		{
			Name:       "burnWithData",
			InputTypes: []string{"address", "uint256", "bytes"},
			Map: func(dto tokendto.TokenBurn) ([]any, bool) {
				return []any{dto.From, idField(dto), tokenhex.Encode(dto.Data)}, true
			},
		},
		{
			Name:       "burn",
			InputTypes: []string{"address", "uint256"},
			Map: func(dto tokendto.TokenBurn) ([]any, bool) {
				return []any{dto.From, idField(dto)}, true
			},
		},
	}
}

// ApproveCandidates returns the prioritized approval signature table.
// For non-fungible pools, the caller must pick TokenApproveCandidates or
// SetApprovalForAllCandidates depending on whether config.tokenIndex is set
// — ApproveCandidates here only covers the fungible (ERC-20 allowance) case.
func ApproveCandidates() []Candidate[tokendto.TokenApproval] {
	return []Candidate[tokendto.TokenApproval]{
		{
			Name:       "approveWithData",
			InputTypes: []string{"address", "uint256", "bytes"},
			Map: func(dto tokendto.TokenApproval) ([]any, bool) {
				return []any{dto.Operator, erc20Allowance(dto), tokenhex.Encode(dto.Data)}, true
			},
		},
		{
			Name:       "approve",
			InputTypes: []string{"address", "uint256"},
			Map: func(dto tokendto.TokenApproval) ([]any, bool) {
				return []any{dto.Operator, erc20Allowance(dto)}, true
			},
		},
	}
}

// erc20Allowance implements the ERC-20 approve default rules: revoking
// (approved=false) sends an allowance of 0; approving without an explicit
// allowance sends the maximum uint256 (unlimited).
func erc20Allowance(dto tokendto.TokenApproval) string {
	if !dto.Approved {
		return "0"
	}
	if dto.Config.Allowance != "" {
		return dto.Config.Allowance
	}
	return maxUint256.String()
}

// TokenApproveCandidates is the per-token ERC-721 approve signature table,
// used when config.tokenIndex is set.
func TokenApproveCandidates() []Candidate[tokendto.TokenApproval] {
	return []Candidate[tokendto.TokenApproval]{
		{
			Name:       "approveWithData",
			InputTypes: []string{"address", "uint256", "bytes"},
			Map: func(dto tokendto.TokenApproval) ([]any, bool) {
				if dto.Config.TokenIndex == "" {
					return nil, false
				}
				return []any{dto.Operator, dto.Config.TokenIndex, tokenhex.Encode(dto.Data)}, true
			},
		},
		{
			Name:       "approve",
			InputTypes: []string{"address", "uint256"},
			Map: func(dto tokendto.TokenApproval) ([]any, bool) {
				if dto.Config.TokenIndex == "" {
					return nil, false
				}
				return []any{dto.Operator, dto.Config.TokenIndex}, true
			},
		},
	}
}

// SetApprovalForAllCandidates is the operator-wide ERC-721 approval
// signature table, used when config.tokenIndex is unset.
func SetApprovalForAllCandidates() []Candidate[tokendto.TokenApproval] {
	return []Candidate[tokendto.TokenApproval]{
		{
			Name:       "setApprovalForAllWithData",
			InputTypes: []string{"address", "bool", "bytes"},
			Map: func(dto tokendto.TokenApproval) ([]any, bool) {
				if dto.Config.TokenIndex != "" {
					return nil, false
				}
				return []any{dto.Operator, dto.Approved, tokenhex.Encode(dto.Data)}, true
			},
		},
		{
			Name:       "setApprovalForAll",
			InputTypes: []string{"address", "bool"},
			Map: func(dto tokendto.TokenApproval) ([]any, bool) {
				if dto.Config.TokenIndex != "" {
					return nil, false
				}
				return []any{dto.Operator, dto.Approved}, true
			},
		},
	}
}
