// Package wire decodes the payload shapes a host exchanges with a list
// provider. Payloads may arrive as raw JSON (string or []byte) or as an
// already-parsed map[string]interface{}; both are normalized to a map
// before struct decoding.
package wire

import (
	"encoding/json"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"git.sr.ht/~gioverse/dynlist/provider"
)

// IndexConstruct is the dynamicIndexList constructor metadata.
type IndexConstruct struct {
	Type                  string        `mapstructure:"type"`
	ListID                string        `mapstructure:"listId"`
	StartIndex            *int64        `mapstructure:"startIndex"`
	MinimumInclusiveIndex *int64        `mapstructure:"minimumInclusiveIndex"`
	MaximumExclusiveIndex *int64        `mapstructure:"maximumExclusiveIndex"`
	Items                 []interface{} `mapstructure:"items"`
}

// TokenConstruct is the dynamicTokenList constructor metadata.
type TokenConstruct struct {
	Type              string        `mapstructure:"type"`
	ListID            string        `mapstructure:"listId"`
	PageToken         string        `mapstructure:"pageToken"`
	BackwardPageToken *string       `mapstructure:"backwardPageToken"`
	ForwardPageToken  *string       `mapstructure:"forwardPageToken"`
	Items             []interface{} `mapstructure:"items"`
}

// IndexFetchResponse is a fetch response for dynamicIndexList.
type IndexFetchResponse struct {
	PresentationToken     string        `mapstructure:"presentationToken"`
	ListID                string        `mapstructure:"listId"`
	CorrelationToken      *string       `mapstructure:"correlationToken"`
	StartIndex            int64         `mapstructure:"startIndex"`
	Items                 []interface{} `mapstructure:"items"`
	MinimumInclusiveIndex *int64        `mapstructure:"minimumInclusiveIndex"`
	MaximumExclusiveIndex *int64        `mapstructure:"maximumExclusiveIndex"`
	ListVersion           *int64        `mapstructure:"listVersion"`
}

// TokenFetchResponse is a fetch response for dynamicTokenList.
type TokenFetchResponse struct {
	PresentationToken string        `mapstructure:"presentationToken"`
	ListID            string        `mapstructure:"listId"`
	CorrelationToken  *string       `mapstructure:"correlationToken"`
	PageToken         string        `mapstructure:"pageToken"`
	NextPageToken     *string       `mapstructure:"nextPageToken"`
	Items             []interface{} `mapstructure:"items"`
}

// CrudOperation is one entry of a CRUD batch's operations array.
type CrudOperation struct {
	Type  string        `mapstructure:"type"`
	Index int64         `mapstructure:"index"`
	Item  interface{}   `mapstructure:"item"`
	Items []interface{} `mapstructure:"items"`
	Count *int64        `mapstructure:"count"`
}

// CrudBatch is the CRUD payload shape, index-list only.
type CrudBatch struct {
	PresentationToken string          `mapstructure:"presentationToken"`
	ListID            string          `mapstructure:"listId"`
	ListVersion       *int64          `mapstructure:"listVersion"`
	Operations        []CrudOperation `mapstructure:"operations"`
}

// ToMap normalizes payload (a raw JSON string/[]byte or an already-parsed
// map) into a map[string]interface{}, or returns INTERNAL_ERROR if payload
// is not object-shaped at all.
func ToMap(payload interface{}) (map[string]interface{}, error) {
	switch v := payload.(type) {
	case map[string]interface{}:
		return v, nil
	case []byte:
		return parseJSON(v)
	case string:
		return parseJSON([]byte(v))
	default:
		return nil, provider.New(provider.InternalError, "payload is not an object")
	}
}

func parseJSON(b []byte) (map[string]interface{}, error) {
	if !gjson.ValidBytes(b) {
		return nil, provider.New(provider.InternalError, "payload is not valid JSON")
	}
	if result := gjson.ParseBytes(b); !result.IsObject() {
		return nil, provider.New(provider.InternalError, "payload is not a JSON object")
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, errors.Wrap(err, "decode JSON payload")
	}
	return m, nil
}

func decode(m map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "build decoder")
	}
	return dec.Decode(m)
}

// DecodeIndexConstruct decodes an IndexConstruct from payload.
func DecodeIndexConstruct(payload interface{}) (IndexConstruct, error) {
	var out IndexConstruct
	m, err := ToMap(payload)
	if err != nil {
		return out, err
	}
	err = decode(m, &out)
	return out, err
}

// DecodeTokenConstruct decodes a TokenConstruct from payload.
func DecodeTokenConstruct(payload interface{}) (TokenConstruct, error) {
	var out TokenConstruct
	m, err := ToMap(payload)
	if err != nil {
		return out, err
	}
	err = decode(m, &out)
	return out, err
}

// DecodeIndexFetchResponse decodes an IndexFetchResponse from payload.
func DecodeIndexFetchResponse(payload interface{}) (IndexFetchResponse, error) {
	var out IndexFetchResponse
	m, err := ToMap(payload)
	if err != nil {
		return out, err
	}
	err = decode(m, &out)
	return out, err
}

// DecodeTokenFetchResponse decodes a TokenFetchResponse from payload.
func DecodeTokenFetchResponse(payload interface{}) (TokenFetchResponse, error) {
	var out TokenFetchResponse
	m, err := ToMap(payload)
	if err != nil {
		return out, err
	}
	err = decode(m, &out)
	return out, err
}

// DecodeCrudBatch decodes a CrudBatch from payload.
func DecodeCrudBatch(payload interface{}) (CrudBatch, error) {
	var out CrudBatch
	m, err := ToMap(payload)
	if err != nil {
		return out, err
	}
	err = decode(m, &out)
	return out, err
}
