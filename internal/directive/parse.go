package directive

import (
	"fmt"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/sskaje/clashctl/internal/tree"
)

// Tags recognized as merge directives.
const (
	ReplaceTag = "!replace"
	DeleteTag  = "!delete"
)

const mergeTag = "!!merge"

// ParseError reports a document that could not be turned into a tree.
type ParseError struct {
	File   string
	Line   int
	Column int
	Msg    string
	Err    error
}

func (e *ParseError) Error() string {
	loc := e.File
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", e.File, e.Line)
		if e.Column > 0 {
			loc = fmt.Sprintf("%s:%d", loc, e.Column)
		}
	}
	if e.Err != nil {
		return fmt.Sprintf("cannot parse %s: %v", loc, e.Err)
	}
	return fmt.Sprintf("cannot parse %s: %s", loc, e.Msg)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var yamlLine = regexp.MustCompile(`line (\d+)`)

// Parse reads a YAML document whose root is a mapping. Values tagged !replace
// or !delete become tree.Replace and tree.Delete markers. An empty document
// yields an empty mapping.
func Parse(name string, data []byte) (*tree.Mapping, error) {
	root, line, err := parse(name, data)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return tree.NewMapping(), nil
	}
	m, ok := root.(*tree.Mapping)
	if !ok {
		return nil, &ParseError{
			File: name,
			Line: line,
			Msg:  fmt.Sprintf("document root must be a mapping, found %s", tree.Kind(root)),
		}
	}
	return m, nil
}

// ParseSequence reads a YAML document whose root is a sequence. An empty
// document yields nil.
func ParseSequence(name string, data []byte) (*tree.Sequence, error) {
	root, line, err := parse(name, data)
	if err != nil || root == nil {
		return nil, err
	}
	seq, ok := root.(*tree.Sequence)
	if !ok {
		return nil, &ParseError{
			File: name,
			Line: line,
			Msg:  fmt.Sprintf("document root must be a sequence, found %s", tree.Kind(root)),
		}
	}
	return seq, nil
}

func parse(name string, data []byte) (tree.Node, int, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		perr := &ParseError{File: name, Err: err}
		if m := yamlLine.FindStringSubmatch(err.Error()); m != nil {
			perr.Line, _ = strconv.Atoi(m[1])
		}
		return nil, 0, perr
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, 0, nil
	}
	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.ShortTag() == tree.TagNull {
		return nil, 0, nil
	}

	c := &converter{file: name}
	n, err := c.convert(root, position{})
	if err != nil {
		return nil, 0, err
	}
	return n, root.Line, nil
}

// position describes where a node sits in the document. Directives are only
// meaningful as mapping values reached from the root through mappings.
type position struct {
	mappingValue bool
	inSequence   bool
}

func (p position) allowsDirective() bool {
	return p.mappingValue && !p.inSequence
}

// maxAliasNodes bounds the number of nodes produced by expanding aliases.
const maxAliasNodes = 100000

type converter struct {
	file string
	// expanding holds the anchored nodes currently being converted.
	expanding map[*yaml.Node]bool
	// aliasDepth is the number of aliases being expanded.
	aliasDepth int
	aliasNodes int
}

func (c *converter) errorf(n *yaml.Node, format string, args ...interface{}) error {
	return &ParseError{
		File:   c.file,
		Line:   n.Line,
		Column: n.Column,
		Msg:    fmt.Sprintf(format, args...),
	}
}

func (c *converter) convert(n *yaml.Node, pos position) (tree.Node, error) {
	if n.Kind == yaml.AliasNode {
		return c.alias(n, pos)
	}
	if c.aliasDepth > 0 {
		c.aliasNodes++
		if c.aliasNodes > maxAliasNodes {
			return nil, c.errorf(n, "aliases expand to more than %d nodes", maxAliasNodes)
		}
	}
	if n.Anchor != "" {
		if c.expanding == nil {
			c.expanding = map[*yaml.Node]bool{}
		}
		c.expanding[n] = true
		defer delete(c.expanding, n)
	}

	switch n.Tag {
	case ReplaceTag:
		if !pos.allowsDirective() {
			return nil, c.errorf(n, "%s is only allowed as a mapping value outside sequences", ReplaceTag)
		}
		plain := *n
		plain.Tag = ""
		v, err := c.convert(&plain, position{inSequence: pos.inSequence})
		if err != nil {
			return nil, err
		}
		return tree.Replace{Value: v}, nil
	case DeleteTag:
		if !pos.allowsDirective() {
			return nil, c.errorf(n, "%s is only allowed as a mapping value outside sequences", DeleteTag)
		}
		return tree.Delete{}, nil
	}

	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return c.convert(n.Content[0], pos)
	case yaml.MappingNode:
		return c.mapping(n, pos)
	case yaml.SequenceNode:
		seq := &tree.Sequence{Items: make([]tree.Node, 0, len(n.Content))}
		for _, item := range n.Content {
			v, err := c.convert(item, position{inSequence: true})
			if err != nil {
				return nil, err
			}
			seq.Items = append(seq.Items, v)
		}
		return seq, nil
	case yaml.ScalarNode:
		return tree.Scalar{Tag: n.ShortTag(), Value: n.Value}, nil
	default:
		return nil, c.errorf(n, "unsupported node kind %d", n.Kind)
	}
}

// alias expands an alias into a copy of the anchored node. An alias that
// refers to a node containing it is an error.
func (c *converter) alias(n *yaml.Node, pos position) (tree.Node, error) {
	if n.Alias == nil {
		return nil, c.errorf(n, "unknown alias %q", n.Value)
	}
	if c.expanding[n.Alias] {
		return nil, c.errorf(n, "alias %q refers to a node containing it", n.Value)
	}
	c.aliasDepth++
	defer func() { c.aliasDepth-- }()
	return c.convert(n.Alias, pos)
}

// mapping converts a mapping node. Merge keys (<<) are flattened the way
// PyYAML does it: merged entries come first, in the order of the << keys, and
// for a list of sources the last source is applied first. Later entries
// overwrite earlier ones but keep the earlier position, so explicit keys win
// over merged ones and earlier sources win over later ones.
func (c *converter) mapping(n *yaml.Node, pos position) (*tree.Mapping, error) {
	if len(n.Content)%2 != 0 {
		return nil, c.errorf(n, "mapping has an odd number of nodes")
	}

	var merged []*tree.Mapping
	for i := 0; i < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if !isMergeKey(k) {
			continue
		}
		sources, err := c.mergeSources(v, pos)
		if err != nil {
			return nil, err
		}
		for j := len(sources) - 1; j >= 0; j-- {
			merged = append(merged, sources[j])
		}
	}

	m := tree.NewMapping()
	for _, src := range merged {
		src.Each(m.Set)
	}

	childPos := position{mappingValue: true, inSequence: pos.inSequence}
	for i := 0; i < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if isMergeKey(k) {
			continue
		}
		if k.Kind != yaml.ScalarNode {
			return nil, c.errorf(k, "mapping keys must be scalars")
		}
		value, err := c.convert(v, childPos)
		if err != nil {
			return nil, err
		}
		m.Set(k.Value, value)
	}
	return m, nil
}

func (c *converter) mergeSources(v *yaml.Node, pos position) ([]*tree.Mapping, error) {
	nodes := []*yaml.Node{v}
	if v.Kind == yaml.SequenceNode {
		nodes = v.Content
	}
	sources := make([]*tree.Mapping, 0, len(nodes))
	for _, node := range nodes {
		converted, err := c.convert(node, position{inSequence: pos.inSequence})
		if err != nil {
			return nil, err
		}
		m, ok := converted.(*tree.Mapping)
		if !ok {
			return nil, c.errorf(node, "merge key value must be a mapping or a list of mappings")
		}
		sources = append(sources, m)
	}
	return sources, nil
}

func isMergeKey(k *yaml.Node) bool {
	return k.Kind == yaml.ScalarNode && k.Value == "<<" && k.ShortTag() == mergeTag
}
