package tokenabi

import (
	"fmt"

	"github.com/hyperledger/firefly-tokens-connector/abitype"
)

// ErrNoMethod is returned when no candidate in a signature table matches
// the loaded ABI, or every candidate that matched rejected the DTO.
var ErrNoMethod = fmt.Errorf("tokenabi: no suitable method found for schema")

// ResolveMethod iterates candidates in priority order; for each, it scans
// schemaMethods for an ABI entry with the candidate's name and input type
// vector. On the first ABI match it evaluates the candidate's Map against
// dto; if Map accepts the DTO, that (method, params) pair is returned.
// Ordering must be preserved exactly: earlier candidates carry more
// information and are tried first.
func ResolveMethod[T any](schemaMethods []abitype.Method, candidates []Candidate[T], dto T) (abitype.Method, []any, error) {
	for _, candidate := range candidates {
		method, ok := findMethod(schemaMethods, candidate.Name, candidate.InputTypes)
		if !ok {
			continue
		}
		params, accepted := candidate.Map(dto)
		if !accepted {
			continue
		}
		return method, params, nil
	}
	return abitype.Method{}, nil, ErrNoMethod
}

func findMethod(methods []abitype.Method, name string, inputTypes []string) (abitype.Method, bool) {
	for _, m := range methods {
		if m.MatchesSignature(name, inputTypes) {
			return m, true
		}
	}
	return abitype.Method{}, false
}
