// Package sonic centralizes the bytedance/sonic JSON configuration used
// across the connector's RPC and HTTP codecs, so every caller marshals and
// unmarshals with the same settings.
package sonic

import "github.com/bytedance/sonic"

// Config is reused wherever the connector needs faster-than-encoding/json
// marshal/unmarshal: the gateway request/response bodies and the REST
// edge's request/response bodies are both on the hot path of every
// operation.
var Config = sonic.Config{
	NoQuoteTextMarshaler:    false,
	NoValidateJSONMarshaler: true,
	NoValidateJSONSkip:      true,
}.Froze()
