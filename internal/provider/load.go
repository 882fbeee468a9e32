package provider

import (
	"fmt"
	"os"

	"github.com/sskaje/clashctl/internal/directive"
	"github.com/sskaje/clashctl/internal/tree"
)

// Load reads a list of provider entries from a YAML file. A missing file is
// not an error and yields no providers.
func Load(path string) ([]*tree.Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return Parse(path, data)
}

// Parse decodes a YAML sequence of provider entries.
func Parse(name string, data []byte) ([]*tree.Mapping, error) {
	seq, err := directive.ParseSequence(name, data)
	if err != nil || seq == nil {
		return nil, err
	}

	providers := make([]*tree.Mapping, 0, seq.Len())
	for i, item := range seq.Items {
		m, ok := item.(*tree.Mapping)
		if !ok {
			return nil, &SchemaError{Provider: fmt.Sprintf("#%d", i), Key: KeyName, Reason: "provider entry must be a mapping"}
		}
		providers = append(providers, m)
	}
	return providers, nil
}
