package util

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"

	"github.com/fxamacker/cbor/v2"
)

// RenderCBORBytes decodes a single CBOR data item and renders it as indented
// JSON, for debug logging of inbound messages.
func RenderCBORBytes(data []byte) (string, error) {
	var decoded any
	if err := cbor.Unmarshal(data, &decoded); err != nil {
		return "", err
	}
	return RenderCBORPretty(decoded)
}

func RenderCBORPretty(decoded any) (string, error) {
	normalised, err := normaliseCBORForJSON(decoded)
	if err != nil {
		return "", err
	}

	pretty, err := json.MarshalIndent(normalised, "", "  ")
	if err != nil {
		return "", err
	}
	return string(pretty), nil
}

func normaliseCBORForJSON(value any) (any, error) {
	switch v := value.(type) {
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			norm, err := normaliseCBORForJSON(elem)
			if err != nil {
				return nil, err
			}
			out[i] = norm
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(v))
		keys := make([]string, 0, len(v))
		vals := make(map[string]any, len(v))
		for key, val := range v {
			keyStr := stringifyCBORKey(key)
			keys = append(keys, keyStr)
			vals[keyStr] = val
		}
		sort.Strings(keys)
		for _, k := range keys {
			norm, err := normaliseCBORForJSON(vals[k])
			if err != nil {
				return nil, err
			}
			out[k] = norm
		}
		return out, nil
	case []byte:
		return fmt.Sprintf("h'%x'", v), nil
	case big.Int:
		// 256-bit hashes sent as bignums; JSON numbers would lose precision
		return "0x" + v.Text(16), nil
	case *big.Int:
		return "0x" + v.Text(16), nil
	case cbor.Tag:
		content, err := normaliseCBORForJSON(v.Content)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"_cborTag": v.Number,
			"content":  content,
		}, nil
	default:
		return v, nil
	}
}

func stringifyCBORKey(key any) string {
	switch k := key.(type) {
	case string:
		return k
	case fmt.Stringer:
		return k.String()
	case []byte:
		return fmt.Sprintf("h'%x'", k)
	default:
		return fmt.Sprint(k)
	}
}
