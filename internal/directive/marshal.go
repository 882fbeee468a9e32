package directive

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/sskaje/clashctl/internal/tree"
)

// Marshal encodes a merged document as YAML. Keys keep their insertion order
// and scalars keep their original spelling. Directive markers cannot be
// encoded.
func Marshal(m *tree.Mapping) ([]byte, error) {
	n, err := toYAML(m)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(n); err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	return buf.Bytes(), nil
}

func toYAML(n tree.Node) (*yaml.Node, error) {
	switch v := n.(type) {
	case tree.Scalar:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: v.Tag, Value: v.Value}, nil
	case *tree.Sequence:
		out := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range v.Items {
			child, err := toYAML(item)
			if err != nil {
				return nil, err
			}
			out.Content = append(out.Content, child)
		}
		return out, nil
	case *tree.Mapping:
		out := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		var err error
		v.Each(func(key string, value tree.Node) {
			if err != nil {
				return
			}
			var child *yaml.Node
			child, err = toYAML(value)
			if err != nil {
				err = fmt.Errorf("%s: %w", key, err)
				return
			}
			out.Content = append(out.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: tree.TagStr, Value: key}, child)
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tree.TagNull, Value: "null"}, nil
	case tree.Replace, tree.Delete:
		return nil, fmt.Errorf("unresolved %s directive", tree.Kind(n))
	default:
		return nil, fmt.Errorf("unsupported node type %T", n)
	}
}
