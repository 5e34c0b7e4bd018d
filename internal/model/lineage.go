package model

import "time"

// DefaultRelationship is the relationship type used when none is given.
const DefaultRelationship = "dependency"

// LineageEdge is a directed upstream -> downstream relationship.
// The (Upstream, Downstream) pair has set semantics.
type LineageEdge struct {
	ID               int64     `json:"id"`
	Upstream         string    `json:"upstream_asset_key"`
	Downstream       string    `json:"downstream_asset_key"`
	RelationshipType string    `json:"relationship_type"`
	CreatedAt        time.Time `json:"created_at"`
}
