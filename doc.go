// Package pattern renders tiling patterns into cached, reusable tiles.
//
// # Overview
//
// A pattern is a repeating fill defined by a paint procedure and a step
// matrix. The first time a fill resolves to a pattern, the paint procedure
// runs once against a private accumulator device and the result is stored
// in a per graphics-state pattern cache. Later fills with the same pattern
// ID reuse the cached tile without painting again.
//
// # Quick Start
//
//	dev := pattern.NewMemDevice(256, 256, pattern.RGBAColorInfo, false, nil)
//	if err := dev.Open(); err != nil {
//	    return err
//	}
//	gs := pattern.NewGState(dev)
//	defer gs.FreeChain()
//
//	inst, err := pattern.MakePattern(&pattern.Template{
//	    PaintType:  pattern.PaintColored,
//	    TilingType: pattern.TilingConstant,
//	    BBox:       pattern.Rect{Max: pattern.Pt(8, 8)},
//	    XStep:      8,
//	    YStep:      8,
//	    PaintProc: func(pc *pattern.PatternColor, gs *pattern.GState) error {
//	        gs.SetRGB(1, 0, 0)
//	        return gs.FillRect(0, 0, 4, 4)
//	    },
//	}, pattern.Identity(), gs)
//	if err != nil {
//	    return err
//	}
//	if err := gs.SetPattern(inst, nil); err != nil {
//	    return err
//	}
//	err = gs.FillRect(0, 0, 256, 256)
//
// # Architecture
//
// The package is organized leaf-first:
//
//   - [Tile] is one cache slot: color bits, a coverage mask, a transparency
//     buffer or a deferred command list, plus the replay geometry.
//   - [Cache] is a fixed array of tiles with a byte budget. Slots are
//     direct-mapped by pattern ID and evicted round-robin.
//   - [RasterAccumulator] and the deferred accumulator capture one pattern's
//     drawing. The strategy is chosen once by [SelectStrategy].
//   - [LoadPattern] realizes a pattern color against a device, going
//     through the cache.
//
// Deferred accumulation needs a command-list writer. Import the clist
// package for its side effect to register one:
//
//	import _ "github.com/gogpu/pattern/clist"
//
// # Concurrency
//
// A [GState] chain and its [Cache] are not safe for concurrent use.
// Independent chains (one per page, for example) need no synchronization.
package pattern
