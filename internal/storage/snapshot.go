package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/Benny93/archgraph/internal/analysis"
	"github.com/Benny93/archgraph/internal/graph"
)

// ErrInvalidSnapshot wraps every snapshot validation failure.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Snapshot is the interchange document written by an indexer.
type Snapshot struct {
	Symbols    []graph.Symbol      `json:"symbols"`
	Edges      []graph.EdgeRow     `json:"edges"`
	CoChange   []analysis.CoChange `json:"cochange,omitempty"`
	FileStats  []FileStat          `json:"file_stats,omitempty"`
	Complexity map[int64]float64   `json:"complexity,omitempty"`
}

// History returns the history part of the snapshot.
func (s *Snapshot) History() History {
	return History{CoChange: s.CoChange, Files: s.FileStats}
}

// ReadSnapshot decodes and validates a JSON snapshot.
//
// Symbols need a name and a file path and unique ids. Edges with an empty
// kind become calls; unknown kinds are rejected. Edges pointing at unknown
// symbols are kept and dropped later by the graph builder.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	dec := json.NewDecoder(r)
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: decoding: %v", ErrInvalidSnapshot, err)
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Validate checks and normalizes the snapshot in place.
func (s *Snapshot) Validate() error {
	seen := make(map[int64]bool, len(s.Symbols))
	for i, sym := range s.Symbols {
		if sym.Name == "" {
			return fmt.Errorf("%w: symbol %d has no name", ErrInvalidSnapshot, sym.ID)
		}
		if sym.FilePath == "" {
			return fmt.Errorf("%w: symbol %d has no file_path", ErrInvalidSnapshot, sym.ID)
		}
		if seen[sym.ID] {
			return fmt.Errorf("%w: duplicate symbol id %d", ErrInvalidSnapshot, sym.ID)
		}
		seen[sym.ID] = true
		if s.Symbols[i].QualifiedName == "" {
			s.Symbols[i].QualifiedName = sym.Name
		}
	}

	for i, e := range s.Edges {
		if e.Kind == "" {
			s.Edges[i].Kind = graph.EdgeCall
			continue
		}
		if _, ok := graph.ParseEdgeKind(string(e.Kind)); !ok {
			return fmt.Errorf("%w: edge %d -> %d has unknown kind %q", ErrInvalidSnapshot, e.SourceID, e.TargetID, e.Kind)
		}
	}

	for _, c := range s.CoChange {
		if c.FileA == "" || c.FileB == "" || c.Count < 0 {
			return fmt.Errorf("%w: bad cochange entry %+v", ErrInvalidSnapshot, c)
		}
	}
	return nil
}

// WriteSnapshot encodes a snapshot as indented JSON.
func WriteSnapshot(w io.Writer, s *Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return nil
}
