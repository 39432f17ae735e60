// Package tokenabi resolves an abstract token operation (mint, transfer,
// burn, approve) against one of several vendor ABI variants, and probes a
// deployed contract's ERC-165 capabilities to decide which variant it
// actually speaks.
package tokenabi

import (
	"encoding/json"
	"fmt"

	"github.com/hyperledger/firefly-tokens-connector/abitype"
	"github.com/hyperledger/firefly-tokens-connector/poollocator"
)

// Well-known ERC-165 interface ids that drive schema selection.
const (
	IIDERC20WithData      = "0xaefdad0f"
	IIDERC721WithURI      = "0x8706707d"
	IIDERC721LegacyData   = "0xb2429c12"
	IIDTokenFactory       = "0x83a74a0c"
)

// abi JSON source for each schema. Kept as literal JSON, the way a
// generated contract artifact would ship it, and parsed once at package
// init into the typed abitype.Method registry.
const (
	erc20NoDataABI = `[
		{"type":"function","name":"name","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
		{"type":"function","name":"symbol","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
		{"type":"function","name":"decimals","inputs":[],"outputs":[{"name":"","type":"uint8"}],"stateMutability":"view"},
		{"type":"function","name":"totalSupply","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
		{"type":"function","name":"balanceOf","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
		{"type":"function","name":"mint","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"transferFrom","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"burn","inputs":[{"name":"from","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"approve","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"supportsInterface","inputs":[{"name":"interfaceId","type":"bytes4"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"},
		{"type":"event","name":"Transfer","inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]},
		{"type":"event","name":"Approval","inputs":[{"name":"owner","type":"address","indexed":true},{"name":"spender","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]}
	]`

	erc20WithDataABI = `[
		{"type":"function","name":"name","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
		{"type":"function","name":"symbol","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
		{"type":"function","name":"decimals","inputs":[],"outputs":[{"name":"","type":"uint8"}],"stateMutability":"view"},
		{"type":"function","name":"totalSupply","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
		{"type":"function","name":"balanceOf","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
		{"type":"function","name":"mintWithData","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"mint","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"transferWithData","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"transferFrom","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"burnWithData","inputs":[{"name":"from","type":"address"},{"name":"amount","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"burn","inputs":[{"name":"from","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"approveWithData","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"approve","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"supportsInterface","inputs":[{"name":"interfaceId","type":"bytes4"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"},
		{"type":"event","name":"Transfer","inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]},
		{"type":"event","name":"Approval","inputs":[{"name":"owner","type":"address","indexed":true},{"name":"spender","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]}
	]`

	erc721NoDataABI = `[
		{"type":"function","name":"name","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
		{"type":"function","name":"symbol","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
		{"type":"function","name":"balanceOf","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
		{"type":"function","name":"ownerOf","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
		{"type":"function","name":"mint","inputs":[{"name":"to","type":"address"},{"name":"tokenIndex","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"transferWithData","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenIndex","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"safeTransferFrom","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"burn","inputs":[{"name":"from","type":"address"},{"name":"tokenIndex","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"approve","inputs":[{"name":"to","type":"address"},{"name":"tokenIndex","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"setApprovalForAll","inputs":[{"name":"operator","type":"address"},{"name":"approved","type":"bool"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"supportsInterface","inputs":[{"name":"interfaceId","type":"bytes4"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"},
		{"type":"event","name":"Transfer","inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"tokenId","type":"uint256","indexed":true}]},
		{"type":"event","name":"Approval","inputs":[{"name":"owner","type":"address","indexed":true},{"name":"approved","type":"address","indexed":true},{"name":"tokenId","type":"uint256","indexed":true}]},
		{"type":"event","name":"ApprovalForAll","inputs":[{"name":"owner","type":"address","indexed":true},{"name":"operator","type":"address","indexed":true},{"name":"approved","type":"bool","indexed":false}]}
	]`

	erc721WithDataABI = `[
		{"type":"function","name":"name","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
		{"type":"function","name":"symbol","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
		{"type":"function","name":"baseTokenUri","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
		{"type":"function","name":"tokenURI","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
		{"type":"function","name":"balanceOf","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
		{"type":"function","name":"ownerOf","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
		{"type":"function","name":"mintWithURI","inputs":[{"name":"to","type":"address"},{"name":"tokenIndex","type":"uint256"},{"name":"data","type":"bytes"},{"name":"uri","type":"string"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"mintWithData","inputs":[{"name":"to","type":"address"},{"name":"tokenIndex","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"mint","inputs":[{"name":"to","type":"address"},{"name":"tokenIndex","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"transferWithData","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenIndex","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"safeTransferFrom","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"burnWithData","inputs":[{"name":"from","type":"address"},{"name":"tokenIndex","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"burn","inputs":[{"name":"from","type":"address"},{"name":"tokenIndex","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"approveWithData","inputs":[{"name":"to","type":"address"},{"name":"tokenIndex","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"approve","inputs":[{"name":"to","type":"address"},{"name":"tokenIndex","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"setApprovalForAllWithData","inputs":[{"name":"operator","type":"address"},{"name":"approved","type":"bool"},{"name":"data","type":"bytes"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"setApprovalForAll","inputs":[{"name":"operator","type":"address"},{"name":"approved","type":"bool"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"supportsInterface","inputs":[{"name":"interfaceId","type":"bytes4"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"},
		{"type":"event","name":"Transfer","inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"tokenId","type":"uint256","indexed":true}]},
		{"type":"event","name":"Approval","inputs":[{"name":"owner","type":"address","indexed":true},{"name":"approved","type":"address","indexed":true},{"name":"tokenId","type":"uint256","indexed":true}]},
		{"type":"event","name":"ApprovalForAll","inputs":[{"name":"owner","type":"address","indexed":true},{"name":"operator","type":"address","indexed":true},{"name":"approved","type":"bool","indexed":false}]}
	]`

	// erc721LegacyDataABI is the older "WithData" variant some deployed
	// contracts still speak: mintWithData takes no tokenIndex (the token id
	// is contract-assigned), and there is no URI extension.
	erc721LegacyDataABI = `[
		{"type":"function","name":"name","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
		{"type":"function","name":"symbol","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
		{"type":"function","name":"mintWithData","inputs":[{"name":"to","type":"address"},{"name":"data","type":"bytes"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"transferWithData","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenIndex","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"burnWithData","inputs":[{"name":"from","type":"address"},{"name":"tokenIndex","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"supportsInterface","inputs":[{"name":"interfaceId","type":"bytes4"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"},
		{"type":"event","name":"Transfer","inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"tokenId","type":"uint256","indexed":true}]}
	]`

	// factoryABI is the pool-creation factory contract.
	factoryABI = `[
		{"type":"function","name":"createPool","inputs":[{"name":"name","type":"string"},{"name":"symbol","type":"string"},{"name":"isFungible","type":"bool"},{"name":"data","type":"bytes"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"createPoolWithUri","inputs":[{"name":"name","type":"string"},{"name":"symbol","type":"string"},{"name":"isFungible","type":"bool"},{"name":"data","type":"bytes"},{"name":"uri","type":"string"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"function","name":"supportsInterface","inputs":[{"name":"interfaceId","type":"bytes4"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"},
		{"type":"event","name":"TokenPoolCreation","inputs":[{"name":"contractAddress","type":"address","indexed":false},{"name":"name","type":"string","indexed":false},{"name":"symbol","type":"string","indexed":false},{"name":"isFungible","type":"bool","indexed":false},{"name":"data","type":"bytes","indexed":false}]}
	]`
)

// registry holds the immutable, parsed-once ABI for every known schema.
var registry map[string][]abitype.Method

func init() {
	registry = map[string][]abitype.Method{
		poollocator.SchemaERC20NoData:       mustParseABI(erc20NoDataABI),
		poollocator.SchemaERC20WithData:     mustParseABI(erc20WithDataABI),
		poollocator.SchemaERC721NoData:      mustParseABI(erc721NoDataABI),
		poollocator.SchemaERC721WithData:    mustParseABI(erc721WithDataABI),
		poollocator.SchemaERC721LegacyData:  mustParseABI(erc721LegacyDataABI),
		"Factory":                           mustParseABI(factoryABI),
	}
}

func mustParseABI(raw string) []abitype.Method {
	methods, err := parseABI(raw)
	if err != nil {
		panic(fmt.Sprintf("tokenabi: invalid built-in ABI: %v", err))
	}
	return methods
}

func parseABI(raw string) ([]abitype.Method, error) {
	var methods []abitype.Method
	if err := json.Unmarshal([]byte(raw), &methods); err != nil {
		return nil, fmt.Errorf("tokenabi: failed to parse ABI JSON: %w", err)
	}
	return methods, nil
}

// SchemaABI returns the loaded ABI for a schema name, or nil if unknown.
func SchemaABI(schema string) []abitype.Method {
	return registry[schema]
}

// FactoryABI returns the token factory's ABI.
func FactoryABI() []abitype.Method {
	return registry["Factory"]
}

// GetTokenSchema implements the schema-selection truth table: fungible
// pools are ERC20{No,With}Data, non-fungible pools are ERC721{No,With}Data
// — URI support only matters once a pool is already ERC721WithData.
func GetTokenSchema(isFungible, withData bool) string {
	switch {
	case isFungible && !withData:
		return poollocator.SchemaERC20NoData
	case isFungible && withData:
		return poollocator.SchemaERC20WithData
	case !isFungible && !withData:
		return poollocator.SchemaERC721NoData
	default:
		return poollocator.SchemaERC721WithData
	}
}
