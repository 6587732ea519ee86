package codec

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ajkula/plistener/domain/model"
)

const (
	nullTag      = "!!null"
	strTag       = "!!str"
	intTag       = "!!int"
	floatTag     = "!!float"
	boolTag      = "!!bool"
	timestampTag = "!!timestamp"
	binaryTag    = "!!binary"
	mergeTag     = "!!merge"
)

// ValueToNode encodes a value as a yaml node, tagging it so that NodeToValue
// gives back the same variant (dates stay dates, data stays data).
func ValueToNode(v model.Value) *yaml.Node {
	switch tv := v.(type) {
	case nil, model.Null:
		return scalar(nullTag, "null")
	case model.String:
		return scalar(strTag, string(tv))
	case model.Int:
		return scalar(intTag, strconv.FormatInt(int64(tv), 10))
	case model.Real:
		return scalar(floatTag, formatFloat(float64(tv)))
	case model.Bool:
		return scalar(boolTag, strconv.FormatBool(bool(tv)))
	case model.Date:
		return scalar(timestampTag, time.Time(tv).Format(time.RFC3339Nano))
	case model.Data:
		return scalar(binaryTag, base64.StdEncoding.EncodeToString(tv))
	case model.Array:
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range tv {
			node.Content = append(node.Content, ValueToNode(item))
		}
		return node
	case model.Dict:
		node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range tv.SortedKeys() {
			node.Content = append(node.Content, scalar(strTag, k), ValueToNode(tv[k]))
		}
		return node
	default:
		return scalar(strTag, fmt.Sprint(v))
	}
}

// NodeToValue decodes a yaml node into the closed value variant.
// A zero node (absent key) decodes as Null.
func NodeToValue(n *yaml.Node) (model.Value, error) {
	if n == nil || n.Kind == 0 {
		return model.Null{}, nil
	}

	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return model.Null{}, nil
		}
		return NodeToValue(n.Content[0])

	case yaml.AliasNode:
		return NodeToValue(n.Alias)

	case yaml.SequenceNode:
		arr := make(model.Array, 0, len(n.Content))
		for i, item := range n.Content {
			v, err := NodeToValue(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr = append(arr, v)
		}
		return arr, nil

	case yaml.MappingNode:
		dict := make(model.Dict, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			keyNode, valueNode := n.Content[i], n.Content[i+1]
			if keyNode.ShortTag() == mergeTag {
				if err := mergeInto(dict, valueNode); err != nil {
					return nil, err
				}
				continue
			}
			v, err := NodeToValue(valueNode)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", keyNode.Value, err)
			}
			dict[keyNode.Value] = v
		}
		return dict, nil

	case yaml.ScalarNode:
		return scalarValue(n)
	}

	return nil, fmt.Errorf("line %d: unsupported yaml node kind %d", n.Line, n.Kind)
}

func scalarValue(n *yaml.Node) (model.Value, error) {
	switch n.ShortTag() {
	case nullTag:
		return model.Null{}, nil
	case strTag:
		return model.String(n.Value), nil
	case intTag:
		var i int64
		if err := n.Decode(&i); err == nil {
			return model.Int(i), nil
		}
		var u uint64
		if err := n.Decode(&u); err == nil {
			return model.Int(int64(u)), nil
		}
		return nil, fmt.Errorf("line %d: invalid int %q", n.Line, n.Value)
	case floatTag:
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, fmt.Errorf("line %d: invalid float %q: %w", n.Line, n.Value, err)
		}
		return model.Real(f), nil
	case boolTag:
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, fmt.Errorf("line %d: invalid bool %q: %w", n.Line, n.Value, err)
		}
		return model.Bool(b), nil
	case timestampTag:
		if t, err := time.Parse(time.RFC3339Nano, n.Value); err == nil {
			return model.Date(t), nil
		}
		var t time.Time
		if err := n.Decode(&t); err != nil {
			return nil, fmt.Errorf("line %d: invalid timestamp %q: %w", n.Line, n.Value, err)
		}
		return model.Date(t), nil
	case binaryTag:
		raw := strings.Join(strings.Fields(n.Value), "")
		data, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid binary: %w", n.Line, err)
		}
		return model.Data(data), nil
	default:
		// custom tags keep their text
		return model.String(n.Value), nil
	}
}

func mergeInto(dict model.Dict, n *yaml.Node) error {
	merged, err := NodeToValue(n)
	if err != nil {
		return err
	}

	var sources []model.Value
	switch mv := merged.(type) {
	case model.Dict:
		sources = []model.Value{mv}
	case model.Array:
		sources = mv
	default:
		return fmt.Errorf("line %d: merge value is not a map", n.Line)
	}

	for _, src := range sources {
		d, ok := src.(model.Dict)
		if !ok {
			return fmt.Errorf("line %d: merge value is not a map", n.Line)
		}
		for k, v := range d {
			if _, exists := dict[k]; !exists {
				dict[k] = v
			}
		}
	}
	return nil
}

func scalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return ".nan"
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
