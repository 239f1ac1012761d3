package pattern

import "context"

// Option configures a graphics-state chain created by NewGState.
//
// Example:
//
//	alloc := pattern.NewAccountingAllocator(64 << 20)
//	gs := pattern.NewGState(dev,
//	    pattern.WithAllocator(alloc),
//	    pattern.WithCacheSize(pattern.SmallMaxTiles, pattern.SmallMaxBits),
//	)
type Option func(*config)

// config is shared by every state of a chain.
type config struct {
	ctx            context.Context
	alloc          Allocator
	compositor     Compositor
	numTiles       int
	maxBits        int
	deferredWriter string
	forceRaster    bool
}

func defaultConfig() config {
	return config{
		ctx:            context.Background(),
		alloc:          HeapAllocator{},
		compositor:     LayerCompositor{},
		numTiles:       DefaultMaxTiles,
		maxBits:        DefaultMaxBits,
		deferredWriter: DefaultDeferredWriter,
	}
}

// WithContext sets the context handed to paint procedures through
// GState.Context. LoadPattern stops before painting once it is done.
func WithContext(ctx context.Context) Option {
	return func(c *config) {
		if ctx != nil {
			c.ctx = ctx
		}
	}
}

// WithAllocator sets the allocator for tiles and accumulator buffers.
func WithAllocator(a Allocator) Option {
	return func(c *config) {
		if a != nil {
			c.alloc = a
		}
	}
}

// WithCompositor replaces the transparency compositor.
func WithCompositor(comp Compositor) Option {
	return func(c *config) {
		if comp != nil {
			c.compositor = comp
		}
	}
}

// WithCacheSize sets the slot count and byte budget of the pattern cache
// created on first use.
func WithCacheSize(numTiles, maxBits int) Option {
	return func(c *config) {
		c.numTiles = numTiles
		c.maxBits = maxBits
	}
}

// WithDeferredWriter selects the registered deferred writer used for
// large tiles.
func WithDeferredWriter(name string) Option {
	return func(c *config) {
		c.deferredWriter = name
	}
}

// WithForceRaster disables command-list accumulation: every tile is
// rasterized regardless of size.
func WithForceRaster(on bool) Option {
	return func(c *config) {
		c.forceRaster = on
	}
}
