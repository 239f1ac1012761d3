package pattern

import (
	"errors"
	"fmt"
)

// RemapPattern resolves pc against dev and loads its tile. A nil pattern
// gives the null color. Uncolored patterns need a base color, which
// becomes the pure color painted through the tile's mask.
func RemapPattern(pc *PatternColor, gs *GState, dev Device) (*DeviceColor, error) {
	dc := &DeviceColor{Pattern: pc}
	if pc == nil || pc.Pattern == nil {
		dc.Type = ColorNullPattern
		return dc, nil
	}
	if pc.Pattern.Template.PaintType == PaintUncolored {
		if pc.Base == nil {
			return nil, fmt.Errorf("pattern: uncolored pattern without base color space: %w", ErrUnregistered)
		}
		dc.Type = ColorMaskedPure
		dc.Pure = dev.Info().Color.Encode(*pc.Base)
	} else {
		dc.Type = ColorPattern
	}
	if err := LoadPattern(dc, gs, dev); err != nil {
		return nil, err
	}
	return dc, nil
}

// LoadPattern makes sure the tile of dc's pattern is in the cache of gs's
// chain and installs it in dc. On a cache hit nothing is painted. On a
// miss the pattern's paint procedure runs once, against a copy of the
// state saved when the pattern was made, drawing into an accumulator for
// dev; the result is inserted into the cache.
//
// A paint procedure returning ErrHandled leaves dc as the null color and
// reports success. Any other failure leaves the cache unchanged apart
// from evictions made to free space.
func LoadPattern(dc *DeviceColor, gs *GState, dev Device) error {
	pc := dc.Pattern
	if pc == nil || pc.Pattern == nil {
		dc.Type = ColorNullPattern
		return nil
	}
	inst := pc.Pattern
	cache, err := gs.PatternCache()
	if err != nil {
		return err
	}
	if t, ok := cache.lookupBlend(inst.ID, gs.blend); ok {
		dc.install(t)
		return nil
	}

	info := dev.Info()
	estimate := SizeEstimate(inst, &info)
	strategy := SelectStrategy(inst, dev, estimate, gs.chain.cfg.forceRaster)
	Logger().Debug("pattern: load",
		"id", uint64(inst.ID), "size", inst.Size, "estimate", estimate, "strategy", strategy.String())
	if strategy == StrategyDummy {
		dc.install(cache.AddDummyEntry(inst, info.Color.Depth))
		return nil
	}
	cache.EnsureSpace(estimate)

	target := NewDeviceRef(dev, false)
	defer target.Release()
	acc, err := newAccumulator(strategy, inst, gs, target)
	if err != nil {
		return err
	}
	if err := acc.Open(); err != nil {
		return errors.Join(err, acc.Close())
	}

	scratch := inst.saved.copyForChain(gs)
	accRef := NewDeviceRef(acc, false)
	done := func() error {
		return errors.Join(scratch.FreeChain(), accRef.Release(), acc.Close())
	}
	fail := func(err error) error {
		return errors.Join(err, acc.abort(), done())
	}
	if err := scratch.setDevice(accRef.Retain()); err != nil {
		return fail(err)
	}
	trans := inst.Template.UsesTransparency
	comp := gs.Compositor()
	if trans {
		if err := comp.PushCompositor(scratch); err != nil {
			return fail(err)
		}
	}
	if ra, ok := acc.(*RasterAccumulator); ok && !trans && inst.Template.PaintType == PaintColored {
		if err := ra.erase(); err != nil {
			return fail(err)
		}
	}

	if err := gs.Context().Err(); err != nil {
		return fail(err)
	}
	if err := inst.Template.PaintProc(pc, scratch); err != nil {
		if errors.Is(err, ErrHandled) {
			dc.Type = ColorNullPattern
			dc.Tile, dc.TileID = nil, NoID
			return errors.Join(acc.abort(), done())
		}
		return fail(err)
	}

	if trans {
		if strategy == StrategyRaster {
			var tb TransBuffer
			if err := comp.RetrieveCompositedBuffer(scratch.Device(), &tb, gs.Allocator()); err != nil {
				return fail(err)
			}
			acc.(*RasterAccumulator).setTrans(&tb)
		}
		if err := comp.PopCompositor(scratch); err != nil {
			return fail(err)
		}
	}
	payload, err := acc.capture()
	if err != nil {
		return fail(err)
	}
	payload.BlendMode = gs.blend

	// The payload belongs to the cache from here on, or is freed.
	t := cache.AddEntry(payload)
	if got, ok := cache.peek(inst.ID); !ok || got != t {
		Logger().Error("pattern: tile not found after insert", "id", uint64(inst.ID))
		if t != nil {
			cache.Evict(cache.SlotOf(inst.ID))
		} else {
			payload.free(gs.Allocator())
		}
		return errors.Join(fmt.Errorf("pattern: tile %d lost after insert: %w", inst.ID, ErrFatal), done())
	}
	if err := done(); err != nil {
		Logger().Warn("pattern: close accumulator", "id", uint64(inst.ID), "err", err)
	}
	dc.install(t)
	return nil
}
