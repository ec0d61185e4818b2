package services

import (
	"sync/atomic"

	"github.com/ekaya-inc/ekaya-semantic/pkg/apperrors"
)

// GraphHolder publishes the current relationship graph. A refresh builds a complete new
// graph and swaps it in; readers never see a partially built graph.
type GraphHolder struct {
	current atomic.Pointer[RelationshipGraph]
}

// NewGraphHolder returns a holder seeded with g, which may be nil.
func NewGraphHolder(g *RelationshipGraph) *GraphHolder {
	h := &GraphHolder{}
	if g != nil {
		h.current.Store(g)
	}
	return h
}

// Graph returns the current graph, or nil before the first analysis run.
func (h *GraphHolder) Graph() *RelationshipGraph {
	return h.current.Load()
}

// Set replaces the current graph.
func (h *GraphHolder) Set(g *RelationshipGraph) {
	h.current.Store(g)
}

// CurrentGraph returns the graph published by src, or apperrors.ErrGraphNotBuilt before the
// first analysis run.
func CurrentGraph(src GraphSource) (*RelationshipGraph, error) {
	g := src.Graph()
	if g == nil {
		return nil, apperrors.ErrGraphNotBuilt
	}
	return g, nil
}

var _ GraphSource = (*GraphHolder)(nil)
