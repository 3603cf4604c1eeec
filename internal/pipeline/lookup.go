package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/banshee-data/phylo.report/internal/artifact"
	"github.com/banshee-data/phylo.report/internal/db"
)

// Lookup returns the current state of request id.
func (c *Coordinator) Lookup(ctx context.Context, id string) (*Request, error) {
	if !artifact.ValidID(id) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRequest, id)
	}
	rec, err := c.registry.GetRequest(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRequest, id)
	}
	if err != nil {
		return nil, err
	}
	artifacts, err := c.registry.Artifacts(ctx, id)
	if err != nil {
		return nil, err
	}
	return requestFromRecord(rec, artifacts), nil
}

// ResolveOwner returns the id of the request that owns the artifact at path.
func (c *Coordinator) ResolveOwner(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: no artifact path given", ErrMissingFields)
	}
	a, err := c.registry.LookupArtifact(ctx, filepath.Clean(path))
	if errors.Is(err, db.ErrNotFound) {
		return "", fmt.Errorf("%w: %s is not a known artifact", ErrArtifactNotFound, path)
	}
	if err != nil {
		return "", err
	}
	return a.RequestID, nil
}

// Recent returns up to limit requests, newest first.
func (c *Coordinator) Recent(ctx context.Context, limit int) ([]*Request, error) {
	recs, err := c.registry.RecentRequests(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*Request, 0, len(recs))
	for i := range recs {
		out = append(out, requestFromRecord(&recs[i], nil))
	}
	return out, nil
}
