// Package catalog provides the read-only block-definition and adapter-spec
// catalogs consumed by normalization.
//
// The normalization core never mutates a catalog. Block definitions map a
// block type name to its declared ports (type templates, hidden/collect
// flags), its cardinality metadata, and whether it is frame-delaying for
// cycle purposes. The adapter catalog answers assignability queries and
// finds shortest adapter chains between concrete types.
package catalog
