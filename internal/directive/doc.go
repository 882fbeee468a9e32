// Package directive reads and writes the YAML documents clashctl merges.
//
// Override documents may tag a mapping value with one of two directives:
//
//	dns: !replace
//	  enable: false
//	hosts: !delete
//
// !replace installs the tagged value as is, without merging it with the
// value already present. !delete removes the key. Both are only meaningful
// as mapping values; anywhere else, including anywhere inside a sequence,
// they are rejected with a *ParseError.
//
// YAML anchors and merge keys are expanded while parsing, so every node of
// the resulting tree is owned by exactly one parent.
package directive
