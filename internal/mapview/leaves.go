package mapview

import (
	"context"
	"fmt"
	"math"
)

// AllLeaves is the limit passed to GetClusterLeaves to request every leaf.
const AllLeaves = math.MaxInt32

type leavesResult struct {
	leaves []Feature
	err    error
}

// Leaves resolves the complete leaf list of a cluster. It blocks until the
// engine calls back or ctx is done. The engine offers no cancellation, so a
// late callback lands in a buffered channel nobody reads. Only the first
// callback counts; later ones are dropped.
func Leaves(ctx context.Context, src ClusterSource, clusterID int) ([]Feature, error) {
	ch := make(chan leavesResult, 1)
	src.GetClusterLeaves(clusterID, AllLeaves, 0, func(err error, leaves []Feature) {
		select {
		case ch <- leavesResult{leaves: leaves, err: err}:
		default:
		}
	})

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("cluster %d leaves: %w", clusterID, r.err)
		}
		return r.leaves, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
