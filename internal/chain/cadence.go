package chain

import (
	"encoding/base64"
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Argument is a typed script argument in JSON-Cadence form
type Argument struct {
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

// AddressArg builds an Address argument
func AddressArg(addr string) Argument {
	return Argument{Type: "Address", Value: addr}
}

// StringArg builds a String argument
func StringArg(s string) Argument {
	return Argument{Type: "String", Value: s}
}

// UInt64Arg builds a UInt64 argument
func UInt64Arg(v uint64) Argument {
	return Argument{Type: "UInt64", Value: strconv.FormatUint(v, 10)}
}

// IntArg builds an Int argument
func IntArg(v int64) Argument {
	return Argument{Type: "Int", Value: strconv.FormatInt(v, 10)}
}

// ArrayArg builds an Array argument
func ArrayArg(elems ...Argument) Argument {
	if elems == nil {
		elems = []Argument{}
	}
	return Argument{Type: "Array", Value: elems}
}

// encodeArgument returns the base64 JSON-Cadence form used by the REST API
func encodeArgument(arg Argument) (string, error) {
	raw, err := json.Marshal(arg)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s argument: %w", arg.Type, err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

type cadenceValue struct {
	Type  string              `json:"type"`
	Value jsoniter.RawMessage `json:"value"`
}

type cadenceField struct {
	Name  string       `json:"name"`
	Value cadenceValue `json:"value"`
}

type cadenceComposite struct {
	ID     string         `json:"id"`
	Fields []cadenceField `json:"fields"`
}

type cadenceEntry struct {
	Key   cadenceValue `json:"key"`
	Value cadenceValue `json:"value"`
}

// DecodeBase64Value decodes a base64 JSON-Cadence document
func DecodeBase64Value(encoded string) (interface{}, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 payload: %w", err)
	}
	return DecodeValue(raw)
}

// DecodeValue turns a JSON-Cadence document into plain Go values. Composites
// and dictionaries become maps, arrays become slices, and numbers stay strings
// so fixed-point values keep their precision.
func DecodeValue(raw []byte) (interface{}, error) {
	var v cadenceValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to parse cadence value: %w", err)
	}
	return decode(v)
}

func decode(v cadenceValue) (interface{}, error) {
	switch v.Type {
	case "Void":
		return nil, nil
	case "Optional":
		if len(v.Value) == 0 || string(v.Value) == "null" {
			return nil, nil
		}
		var inner cadenceValue
		if err := json.Unmarshal(v.Value, &inner); err != nil {
			return nil, fmt.Errorf("optional: %w", err)
		}
		return decode(inner)
	case "Bool":
		var b bool
		if err := json.Unmarshal(v.Value, &b); err != nil {
			return nil, fmt.Errorf("bool: %w", err)
		}
		return b, nil
	case "Array":
		var elems []cadenceValue
		if err := json.Unmarshal(v.Value, &elems); err != nil {
			return nil, fmt.Errorf("array: %w", err)
		}
		out := make([]interface{}, 0, len(elems))
		for _, e := range elems {
			d, err := decode(e)
			if err != nil {
				return nil, err
			}
			out = append(out, d)
		}
		return out, nil
	case "Dictionary":
		var entries []cadenceEntry
		if err := json.Unmarshal(v.Value, &entries); err != nil {
			return nil, fmt.Errorf("dictionary: %w", err)
		}
		out := make(map[string]interface{}, len(entries))
		for _, e := range entries {
			k, err := decode(e.Key)
			if err != nil {
				return nil, err
			}
			val, err := decode(e.Value)
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(k)] = val
		}
		return out, nil
	case "Struct", "Resource", "Event", "Contract", "Enum":
		var c cadenceComposite
		if err := json.Unmarshal(v.Value, &c); err != nil {
			return nil, fmt.Errorf("%s: %w", v.Type, err)
		}
		out := make(map[string]interface{}, len(c.Fields)+1)
		for _, f := range c.Fields {
			val, err := decode(f.Value)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			out[f.Name] = val
		}
		if c.ID != "" {
			out["_type"] = c.ID
		}
		return out, nil
	case "Path":
		var p struct {
			Domain     string `json:"domain"`
			Identifier string `json:"identifier"`
		}
		if err := json.Unmarshal(v.Value, &p); err != nil {
			return nil, fmt.Errorf("path: %w", err)
		}
		return "/" + p.Domain + "/" + p.Identifier, nil
	case "":
		return nil, fmt.Errorf("cadence value without type")
	default:
		// Scalars (String, Address, Int*, UInt*, Fix64, UFix64, ...) carry a
		// string value; anything else is passed through as generic JSON.
		var s string
		if err := json.Unmarshal(v.Value, &s); err == nil {
			return s, nil
		}
		var generic interface{}
		if err := json.Unmarshal(v.Value, &generic); err != nil {
			return nil, fmt.Errorf("%s: %w", v.Type, err)
		}
		return generic, nil
	}
}
