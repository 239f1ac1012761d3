package clist

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/pattern"
)

// ErrCorrupt reports a command list that cannot be decoded.
var ErrCorrupt = errors.New("clist: corrupt command list")

// List is a finished command list.
type List struct {
	data          []byte
	width, height int
	procs         pattern.BufDeviceProcs
	bands         []int
	ncmds         int
	closed        bool
}

// DataSize implements pattern.DeferredCommands.
func (l *List) DataSize() int { return len(l.data) }

// NumCommands returns the number of recorded commands.
func (l *List) NumCommands() int { return l.ncmds }

// BandCounts returns, per band, the number of drawing commands touching
// it.
func (l *List) BandCounts() []int { return l.bands }

// Close implements pattern.DeferredCommands.
func (l *List) Close() error {
	l.data = nil
	l.closed = true
	return nil
}

// Ops decodes the list and returns its operations in order.
func (l *List) Ops() ([]Op, error) {
	var ops []Op
	err := l.decode(func(c *command) error {
		ops = append(ops, c.op)
		return nil
	})
	return ops, err
}

// command is one decoded command.
type command struct {
	op         Op
	x, y, w, h int
	c0, c1     pattern.ColorIndex
	raster     int
	planes     int
	data       []byte
	alpha      float64
	mode       pattern.BlendMode
}

type decoder struct {
	data []byte
	off  int
}

func (d *decoder) uvarint() (uint64, error) {
	v, n := binary.Uvarint(d.data[d.off:])
	if n <= 0 {
		return 0, fmt.Errorf("%w: bad uvarint at %d", ErrCorrupt, d.off)
	}
	d.off += n
	return v, nil
}

func (d *decoder) varint() (int64, error) {
	v, n := binary.Varint(d.data[d.off:])
	if n <= 0 {
		return 0, fmt.Errorf("%w: bad varint at %d", ErrCorrupt, d.off)
	}
	d.off += n
	return v, nil
}

func (d *decoder) bytes(n int) ([]byte, error) {
	if n < 0 || d.off+n > len(d.data) {
		return nil, fmt.Errorf("%w: %d bytes at %d past end", ErrCorrupt, n, d.off)
	}
	b := d.data[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *decoder) readByte() (byte, error) {
	b, err := d.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) rect(c *command) error {
	x, err := d.varint()
	if err != nil {
		return err
	}
	y, err := d.varint()
	if err != nil {
		return err
	}
	w, err := d.uvarint()
	if err != nil {
		return err
	}
	h, err := d.uvarint()
	if err != nil {
		return err
	}
	c.x, c.y, c.w, c.h = int(x), int(y), int(w), int(h)
	return nil
}

func (d *decoder) rows(c *command, planes int) error {
	raster, err := d.uvarint()
	if err != nil {
		return err
	}
	c.raster = int(raster)
	c.data, err = d.bytes(c.raster * c.h * planes)
	return err
}

func (d *decoder) blend(c *command) error {
	bits, err := d.uvarint()
	if err != nil {
		return err
	}
	m, err := d.readByte()
	if err != nil {
		return err
	}
	c.alpha, c.mode = math.Float64frombits(bits), pattern.BlendMode(m)
	return nil
}

// decode calls fn for every command in order.
func (l *List) decode(fn func(*command) error) error {
	if l.closed {
		return fmt.Errorf("clist: list closed: %w", pattern.ErrRangeCheck)
	}
	d := &decoder{data: l.data}
	for d.off < len(d.data) {
		var c command
		b, _ := d.readByte()
		c.op = Op(b)
		var err error
		switch c.op {
		case OpFillRect:
			if err = d.rect(&c); err == nil {
				var v uint64
				v, err = d.uvarint()
				c.c1 = pattern.ColorIndex(v)
			}
		case OpCopyMono:
			if err = d.rect(&c); err != nil {
				break
			}
			var v0, v1 uint64
			if v0, err = d.uvarint(); err != nil {
				break
			}
			if v1, err = d.uvarint(); err != nil {
				break
			}
			c.c0, c.c1 = pattern.ColorIndex(v0), pattern.ColorIndex(v1)
			err = d.rows(&c, 1)
		case OpCopyColor:
			if err = d.rect(&c); err == nil {
				err = d.rows(&c, 1)
			}
		case OpCopyPlanes:
			if err = d.rect(&c); err != nil {
				break
			}
			var n uint64
			if n, err = d.uvarint(); err != nil {
				break
			}
			c.planes, c.raster = int(n), c.w
			c.data, err = d.bytes(c.w * c.h * c.planes)
		case OpBlendState, OpBeginGroup:
			err = d.blend(&c)
		case OpPushCompositor, OpPopCompositor, OpEndGroup:
		default:
			err = fmt.Errorf("%w: opcode %d at %d", ErrCorrupt, b, d.off-1)
		}
		if err != nil {
			return err
		}
		if err := fn(&c); err != nil {
			return err
		}
	}
	return nil
}

// Playback implements pattern.DeferredCommands. Compositor pushes put a
// layer device in front of the current device; the matching pop hands
// the layer's result to a device that accepts transparency buffers, or
// composites it otherwise.
func (l *List) Playback(dev pattern.Device) error {
	procs := l.procs
	def := pattern.NoBufDeviceProcs()
	if procs.Create == nil {
		procs.Create = def.Create
	}
	if procs.Setup == nil {
		procs.Setup = def.Setup
	}
	if procs.Destroy == nil {
		procs.Destroy = def.Destroy
	}
	bdev, err := procs.Create(dev, l.width, l.height)
	if err != nil {
		return err
	}
	defer procs.Destroy(bdev)
	if err := procs.Setup(bdev, 0, l.height); err != nil {
		return err
	}
	p := &player{stack: []pattern.Device{bdev}, alpha: 1}
	err = l.decode(p.exec)
	p.unbalanced = len(p.stack) > 1
	for len(p.stack) > 1 {
		ld := p.stack[len(p.stack)-1].(*pattern.LayerDevice)
		p.stack = p.stack[:len(p.stack)-1]
		err = errors.Join(err, ld.Close())
	}
	if err == nil && p.unbalanced {
		err = fmt.Errorf("%w: unbalanced compositor push", ErrCorrupt)
	}
	return err
}

// player executes decoded commands against a device stack.
type player struct {
	stack      []pattern.Device
	alpha      float64
	mode       pattern.BlendMode
	unbalanced bool
}

func (p *player) top() pattern.Device { return p.stack[len(p.stack)-1] }

func (p *player) exec(c *command) error {
	dev := p.top()
	switch c.op {
	case OpFillRect:
		return dev.FillRectangle(c.x, c.y, c.w, c.h, c.c1)
	case OpCopyMono:
		return dev.CopyMono(c.data, 0, c.raster, c.x, c.y, c.w, c.h, c.c0, c.c1)
	case OpCopyColor:
		return dev.CopyColor(c.data, 0, c.raster, c.x, c.y, c.w, c.h)
	case OpCopyPlanes:
		return dev.CopyPlanes(c.data, 0, c.raster, c.x, c.y, c.w, c.h, c.h)
	case OpBlendState:
		p.alpha, p.mode = c.alpha, c.mode
		if bs, ok := dev.(pattern.BlendStateSetter); ok {
			bs.SetBlendState(c.alpha, c.mode)
		}
	case OpPushCompositor:
		ld := pattern.NewLayerDevice(dev, pattern.HeapAllocator{})
		if err := ld.Open(); err != nil {
			return err
		}
		ld.SetBlendState(p.alpha, p.mode)
		p.stack = append(p.stack, ld)
	case OpPopCompositor:
		ld, ok := dev.(*pattern.LayerDevice)
		if !ok || len(p.stack) < 2 {
			return fmt.Errorf("%w: compositor pop without push", ErrCorrupt)
		}
		p.stack = p.stack[:len(p.stack)-1]
		below := p.top()
		var err error
		if recv, ok := below.(pattern.TransBufferReceiver); ok {
			var tb pattern.TransBuffer
			if err = ld.Retrieve(&tb, pattern.HeapAllocator{}); err == nil {
				err = recv.ReceiveTransBuffer(&tb)
			}
		} else {
			err = ld.CompositeOnto(below)
		}
		return errors.Join(err, ld.Close())
	case OpBeginGroup:
		g, ok := dev.(pattern.GroupDevice)
		if !ok {
			return fmt.Errorf("clist: group on %s device: %w", dev.Info().Name, pattern.ErrUnsupported)
		}
		return g.BeginGroup(c.alpha, c.mode)
	case OpEndGroup:
		g, ok := dev.(pattern.GroupDevice)
		if !ok {
			return fmt.Errorf("clist: group on %s device: %w", dev.Info().Name, pattern.ErrUnsupported)
		}
		return g.EndGroup()
	}
	return nil
}

var _ pattern.DeferredCommands = (*List)(nil)
