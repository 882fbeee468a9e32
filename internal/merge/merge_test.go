package merge

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/sskaje/clashctl/internal/directive"
	"github.com/sskaje/clashctl/internal/tree"
)

var allowMapping = cmp.Options{cmp.AllowUnexported(tree.Mapping{}), cmpopts.EquateEmpty()}

func mustParse(t *testing.T, input string) *tree.Mapping {
	t.Helper()
	m, err := directive.Parse(t.Name()+".yaml", []byte(input))
	if err != nil {
		t.Fatalf("failed to parse %q: %v", input, err)
	}
	return m
}

func TestDeepMerge(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		override string
		expected string
	}{
		{
			name:     "replace overrides everything",
			base:     "a: {x: 1, y: 2}",
			override: "a: !replace {z: 3}",
			expected: "a: {z: 3}",
		},
		{
			name:     "replace does not concatenate lists",
			base:     "p: [1, 2]",
			override: "p: !replace [3]",
			expected: "p: [3]",
		},
		{
			name:     "replace on missing key",
			base:     "b: 1",
			override: "a: !replace {z: 3}",
			expected: "{b: 1, a: {z: 3}}",
		},
		{
			name:     "replace resolves nested directives",
			base:     "a: {x: 1}",
			override: "a: !replace\n  x: !delete\n  y: 2",
			expected: "a: {y: 2}",
		},
		{
			name:     "delete removes only the targeted key",
			base:     "{a: 1, b: 2}",
			override: "a: !delete",
			expected: "b: 2",
		},
		{
			name:     "delete of absent key is a no-op",
			base:     "b: 2",
			override: "a: !delete",
			expected: "b: 2",
		},
		{
			name:     "nested delete",
			base:     "dns: {enable: true, fallback: [a]}",
			override: "dns:\n  fallback: !delete",
			expected: "dns: {enable: true}",
		},
		{
			name:     "list concatenation appends override",
			base:     "p: [1, 2]",
			override: "p: [3]",
			expected: "p: [1, 2, 3]",
		},
		{
			name:     "rules concatenation prepends override",
			base:     "rules: [b]",
			override: "rules: [a]",
			expected: "rules: [a, b]",
		},
		{
			name:     "nested rules key is prepended too",
			base:     "sub: {rules: [b]}",
			override: "sub: {rules: [a]}",
			expected: "sub: {rules: [a, b]}",
		},
		{
			name:     "list replaces non-list",
			base:     "p: 1",
			override: "p: [3]",
			expected: "p: [3]",
		},
		{
			name:     "mapping replaces non-mapping",
			base:     "a: [1]",
			override: "a: {x: 1}",
			expected: "a: {x: 1}",
		},
		{
			name:     "mappings merge recursively",
			base:     "a: {x: 1, y: {z: 1}}",
			override: "a: {y: {w: 2}, v: 3}",
			expected: "a: {x: 1, y: {z: 1, w: 2}, v: 3}",
		},
		{
			name:     "scalar overwrites",
			base:     "{a: 1, b: x}",
			override: "{a: two, b: ~}",
			expected: "{a: two, b: ~}",
		},
		{
			name:     "scalar overwrites mapping",
			base:     "a: {x: 1}",
			override: "a: 1",
			expected: "a: 1",
		},
		{
			name:     "new keys keep source order after existing ones",
			base:     "{b: 1, a: 1}",
			override: "{c: 1, a: 2}",
			expected: "{b: 1, a: 2, c: 1}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := DeepMerge(mustParse(t, tt.base), tree.NewMapping())
			result := DeepMerge(mustParse(t, tt.override), base)
			expected := mustParse(t, tt.expected)
			if diff := cmp.Diff(expected, result, allowMapping); diff != "" {
				t.Errorf("DeepMerge() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDeepMerge_ReturnsDestination(t *testing.T) {
	dst := tree.NewMapping()
	if got := DeepMerge(tree.NewMapping(), dst); got != dst {
		t.Error("DeepMerge() did not return its destination")
	}
}

func TestDeepMerge_DoesNotMutateSourceSequences(t *testing.T) {
	first := mustParse(t, "p: [1]")
	dst := DeepMerge(first, tree.NewMapping())
	DeepMerge(mustParse(t, "p: [2]"), dst)

	p, _ := first.Sequence("p")
	if p.Len() != 1 {
		t.Errorf("source sequence was modified: %d items", p.Len())
	}
}

func TestDeepMerge_DoesNotShareSourceNodes(t *testing.T) {
	src := mustParse(t, "proxy-groups:\n  - name: a\n    use: [p]\nhosts: !replace\n  list: [x]\n")
	dst := DeepMerge(src, tree.NewMapping())

	groups, _ := dst.Sequence("proxy-groups")
	groups.Items[0].(*tree.Mapping).Set("name", tree.String("changed"))
	hosts, _ := dst.Mapping("hosts")
	list, _ := hosts.Sequence("list")
	list.Append(tree.String("y"))

	want := mustParse(t, "proxy-groups:\n  - name: a\n    use: [p]\nhosts: !replace\n  list: [x]\n")
	if diff := cmp.Diff(want, src, allowMapping); diff != "" {
		t.Errorf("source modified through destination (-want +got):\n%s", diff)
	}
}

func TestMergeAll_OrderMatters(t *testing.T) {
	a := "rules: [a]"
	b := "rules: [b]"

	ab := MergeAll(tree.NewMapping(), mustParse(t, a), mustParse(t, b))
	ba := MergeAll(tree.NewMapping(), mustParse(t, b), mustParse(t, a))

	if diff := cmp.Diff(mustParse(t, "rules: [b, a]"), ab, allowMapping); diff != "" {
		t.Errorf("MergeAll(a, b) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(mustParse(t, "rules: [a, b]"), ba, allowMapping); diff != "" {
		t.Errorf("MergeAll(b, a) mismatch (-want +got):\n%s", diff)
	}
	if cmp.Equal(ab, ba, allowMapping) {
		t.Error("expected merge order to change the rules outcome")
	}
}
