package merge

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"pgregory.net/rapid"

	"github.com/sskaje/clashctl/internal/tree"
)

var keys = []string{"a", "b", "c", "rules", "proxies", "dns"}

func scalarGen() *rapid.Generator[tree.Node] {
	return rapid.Custom(func(t *rapid.T) tree.Node {
		switch rapid.IntRange(0, 3).Draw(t, "kind") {
		case 0:
			return tree.Int(rapid.IntRange(-10, 10).Draw(t, "int"))
		case 1:
			return tree.Bool(rapid.Bool().Draw(t, "bool"))
		case 2:
			return tree.Null()
		default:
			return tree.String(rapid.StringMatching(`[a-z]{0,4}`).Draw(t, "str"))
		}
	})
}

func sequenceGen() *rapid.Generator[*tree.Sequence] {
	return rapid.Custom(func(t *rapid.T) *tree.Sequence {
		n := rapid.IntRange(0, 3).Draw(t, "len")
		seq := tree.NewSequence()
		for i := 0; i < n; i++ {
			seq.Append(scalarGen().Draw(t, fmt.Sprintf("item%d", i)))
		}
		return seq
	})
}

func documentGen(depth int) *rapid.Generator[tree.Node] {
	return rapid.Custom(func(t *rapid.T) tree.Node {
		kind := 0
		if depth > 0 {
			kind = rapid.IntRange(0, 2).Draw(t, "node")
		}
		switch kind {
		case 1:
			return sequenceGen().Draw(t, "sequence")
		case 2:
			return mappingGen(depth - 1).Draw(t, "mapping")
		default:
			return scalarGen().Draw(t, "scalar")
		}
	})
}

func mappingGen(depth int) *rapid.Generator[*tree.Mapping] {
	return rapid.Custom(func(t *rapid.T) *tree.Mapping {
		m := tree.NewMapping()
		n := rapid.IntRange(0, 4).Draw(t, "keys")
		for i := 0; i < n; i++ {
			key := rapid.SampledFrom(keys).Draw(t, "key")
			m.Set(key, documentGen(depth).Draw(t, key))
		}
		return m
	})
}

func TestDeepMerge_PropertyBased_EmptySourceIsIdentity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		doc := mappingGen(3).Draw(t, "doc")
		want := tree.Clone(doc)

		got := DeepMerge(tree.NewMapping(), doc)
		if diff := cmp.Diff(want, got, allowMapping); diff != "" {
			t.Fatalf("DeepMerge(empty, doc) mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestDeepMerge_PropertyBased_IntoEmptyCopiesDocument(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		doc := mappingGen(3).Draw(t, "doc")

		got := DeepMerge(doc, tree.NewMapping())
		if diff := cmp.Diff(doc, got, allowMapping); diff != "" {
			t.Fatalf("DeepMerge(doc, empty) mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestDeepMerge_PropertyBased_ListLengthsAdd(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		key := rapid.SampledFrom([]string{"rules", "proxies"}).Draw(t, "key")
		base := sequenceGen().Draw(t, "base")
		over := sequenceGen().Draw(t, "override")
		wantLen := base.Len() + over.Len()

		dst := tree.NewMapping()
		dst.Set(key, base)
		src := tree.NewMapping()
		src.Set(key, over)

		got, _ := DeepMerge(src, dst).Sequence(key)
		if got.Len() != wantLen {
			t.Fatalf("expected %d items, got %d", wantLen, got.Len())
		}
	})
}

