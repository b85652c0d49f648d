// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"github.com/pkg/errors"

	"github.com/gviegas/deferred/driver"
)

// PoolSizeRatio is the number of descriptors of a given
// type that a pool reserves per set.
type PoolSizeRatio struct {
	Type  driver.DescType
	Ratio float32
}

// DescriptorAllocator allocates descriptor sets from a
// pool sized by fixed ratios.
type DescriptorAllocator struct {
	pool    driver.DescPool
	maxSets int
	counts  []driver.DescCount
}

// NewDescriptorAllocator creates a pool from which at
// most maxSets sets can be allocated.
// Each ratio reserves int(Ratio*maxSets) descriptors of
// its type.
func NewDescriptorAllocator(ctx *Context, maxSets int, ratios []PoolSizeRatio) (*DescriptorAllocator, error) {
	counts := make([]driver.DescCount, 0, len(ratios))
	for _, r := range ratios {
		counts = append(counts, driver.DescCount{
			Type:  r.Type,
			Count: int(r.Ratio * float32(maxSets)),
		})
	}
	pool, err := ctx.GPU().NewDescPool(maxSets, counts)
	if err != nil {
		return nil, errors.Wrap(err, "engine: creating descriptor pool")
	}
	return &DescriptorAllocator{
		pool:    pool,
		maxSets: maxSets,
		counts:  counts,
	}, nil
}

// Allocate allocates a set of the given layout.
func (a *DescriptorAllocator) Allocate(layout driver.DescLayout) (driver.DescSet, error) {
	ds, err := a.pool.Alloc(layout)
	if err != nil {
		return nil, errors.Wrap(err, "engine: allocating descriptor set")
	}
	return ds, nil
}

// ClearDescriptors frees every set allocated from a.
func (a *DescriptorAllocator) ClearDescriptors() error { return a.pool.Reset() }

// Counts returns the number of descriptors reserved per
// type. It must not be modified.
func (a *DescriptorAllocator) Counts() []driver.DescCount { return a.counts }

// Cleanup destroys the pool.
// Sets allocated from a become invalid.
func (a *DescriptorAllocator) Cleanup() {
	if a.pool != nil {
		a.pool.Destroy()
		a.pool = nil
	}
}

// defaultPoolRatios are the ratios of the global
// allocator: storage images for compute targets and
// combined image samplers for sampled targets.
// The deferred pipeline allocates two DImage and six
// DTexture descriptors from a pool of DescMaxSets sets.
var defaultPoolRatios = []PoolSizeRatio{
	{driver.DImage, 0.5},
	{driver.DTexture, 1},
}

// newDescLayout creates a descriptor set layout.
func newDescLayout(ctx *Context, descs []driver.Descriptor) (driver.DescLayout, error) {
	dl, err := ctx.GPU().NewDescLayout(descs)
	if err != nil {
		return nil, errors.Wrap(err, "engine: creating descriptor set layout")
	}
	return dl, nil
}
