// Package graph provides the symbol dependency graph for Archgraph.
//
// It defines the symbol and edge rows delivered by the indexer and an
// immutable arena graph built from them. Nodes live in a dense slice and
// adjacency is kept as index slices in both directions, so analyses can walk
// successors and predecessors without pointer chasing.
package graph

// SymbolKind represents the kind of a code symbol.
type SymbolKind string

const (
	KindFunction  SymbolKind = "function"
	KindMethod    SymbolKind = "method"
	KindClass     SymbolKind = "class"
	KindInterface SymbolKind = "interface"
	KindStruct    SymbolKind = "struct"
	KindTrait     SymbolKind = "trait"
	KindEnum      SymbolKind = "enum"
	KindVariable  SymbolKind = "variable"
	KindConstant  SymbolKind = "constant"
	KindTypeAlias SymbolKind = "type_alias"
	KindModule    SymbolKind = "module"
	KindField     SymbolKind = "field"
)

// EdgeKind represents the kind of dependency between two symbols.
type EdgeKind string

const (
	EdgeCall       EdgeKind = "call"
	EdgeInherits   EdgeKind = "inherits"
	EdgeImplements EdgeKind = "implements"
	EdgeImports    EdgeKind = "imports"
	EdgeReference  EdgeKind = "reference"
)

// AllEdgeKinds lists every edge kind the builder understands.
var AllEdgeKinds = []EdgeKind{EdgeCall, EdgeInherits, EdgeImplements, EdgeImports, EdgeReference}

// ParseEdgeKind converts a string to an EdgeKind.
// Returns false for unknown kinds.
func ParseEdgeKind(s string) (EdgeKind, bool) {
	for _, k := range AllEdgeKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Symbol is a symbol row as stored by the indexer.
type Symbol struct {
	// ID is the symbol id assigned by the indexer. Unique per snapshot.
	ID int64 `json:"id"`

	// Name is the short name of the symbol.
	Name string `json:"name"`

	// QualifiedName is the fully qualified name (e.g. pkg.Type.Method).
	QualifiedName string `json:"qualified_name"`

	// Kind is the symbol kind.
	Kind SymbolKind `json:"kind"`

	// FilePath is the repository-relative path of the defining file.
	FilePath string `json:"file_path"`

	// LineStart is the first line of the definition.
	LineStart int `json:"line_start"`

	// LineEnd is the last line of the definition.
	LineEnd int `json:"line_end"`

	// IsExported reports whether the symbol is visible outside its module.
	IsExported bool `json:"is_exported"`
}

// EdgeRow is an edge row as stored by the indexer.
type EdgeRow struct {
	// SourceID is the depending symbol.
	SourceID int64 `json:"source_id"`

	// TargetID is the symbol depended upon.
	TargetID int64 `json:"target_id"`

	// Kind is the dependency kind.
	Kind EdgeKind `json:"kind"`

	// Line is the line of the reference in the source symbol's file.
	Line int `json:"line"`
}

// Node is a symbol materialized in a Graph.
type Node = Symbol

// Edge is a directed edge between two nodes of a Graph.
type Edge struct {
	Source int64    `json:"source_id"`
	Target int64    `json:"target_id"`
	Kind   EdgeKind `json:"kind"`
	Line   int      `json:"line"`
}
