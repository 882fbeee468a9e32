// Package merge implements the deep merge clashctl uses to layer override
// documents onto a subscription.
//
// For every key of the source document, in source order:
//
//   - !replace values are installed as is, discarding the destination value.
//   - !delete removes the key from the destination.
//   - mappings are merged recursively; a destination value that is not a
//     mapping is replaced by a fresh one.
//   - sequences are concatenated when the destination also holds a sequence:
//     destination items first, except for "rules" where the source items come
//     first so that override rules match before subscription rules.
//   - anything else overwrites the destination value.
//
// Merging is not commutative. Callers fold documents left to right onto an
// accumulator that starts from the subscription.
package merge

import (
	"github.com/sskaje/clashctl/internal/tree"
)

// RulesKey names the sequence whose source items are prepended on merge.
const RulesKey = "rules"

// DeepMerge merges source into destination in place and returns destination.
// Directive markers in source are resolved and never copied into
// destination. destination never shares nodes with source.
func DeepMerge(source, destination *tree.Mapping) *tree.Mapping {
	source.Each(func(key string, value tree.Node) {
		mergeValue(destination, key, value)
	})
	return destination
}

// MergeAll folds sources onto destination left to right.
func MergeAll(destination *tree.Mapping, sources ...*tree.Mapping) *tree.Mapping {
	for _, src := range sources {
		destination = DeepMerge(src, destination)
	}
	return destination
}

func mergeValue(destination *tree.Mapping, key string, value tree.Node) {
	switch v := value.(type) {
	case tree.Replace:
		destination.Set(key, resolve(v.Value))
	case tree.Delete:
		destination.Delete(key)
	case *tree.Mapping:
		node, ok := destination.Mapping(key)
		if !ok {
			node = tree.NewMapping()
			destination.Set(key, node)
		}
		DeepMerge(v, node)
	case *tree.Sequence:
		v = tree.Clone(v).(*tree.Sequence)
		existing, ok := destination.Sequence(key)
		if !ok {
			destination.Set(key, v)
			return
		}
		items := make([]tree.Node, 0, existing.Len()+v.Len())
		if key == RulesKey {
			items = append(items, v.Items...)
			items = append(items, existing.Items...)
		} else {
			items = append(items, existing.Items...)
			items = append(items, v.Items...)
		}
		destination.Set(key, &tree.Sequence{Items: items})
	case tree.Scalar:
		destination.Set(key, v)
	default:
		destination.Set(key, value)
	}
}

// resolve returns the value a !replace directive installs. Directives nested
// in a replaced mapping are applied against an empty mapping.
func resolve(value tree.Node) tree.Node {
	switch v := value.(type) {
	case *tree.Mapping:
		return DeepMerge(v, tree.NewMapping())
	case tree.Replace:
		return resolve(v.Value)
	default:
		return tree.Clone(value)
	}
}
