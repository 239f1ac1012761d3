package pattern

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// DefaultDeferredWriter names the deferred writer used when none is
// configured. The clist package registers it.
const DefaultDeferredWriter = "clist"

// DeferredScratchSize is the scratch buffer handed to a deferred writer.
const DeferredScratchSize = 128 << 10

// DeferredCommands is a finished command list held by a tile.
type DeferredCommands interface {
	// DataSize returns the serialized size in bytes.
	DataSize() int
	// Playback replays the commands onto dev.
	Playback(dev Device) error
	// Close releases the command list.
	Close() error
}

// DeferredWriter records drawing operations instead of rasterizing them.
// Compositor pushes, blend state changes and groups are recorded too.
type DeferredWriter interface {
	Device
	CompositorSink
	GroupDevice
	BlendStateSetter

	// Finalize flushes pending commands and returns the data size.
	Finalize() (int, error)
	// Commands returns the finished command list and hands its ownership
	// to the caller. It is valid after Finalize.
	Commands() DeferredCommands
	// Discard drops everything recorded.
	Discard() error
}

// BufDeviceProcs are the hooks a command-list reader uses to get band
// buffers at playback time.
type BufDeviceProcs struct {
	// Create returns the device bands are rendered into.
	Create func(target Device, width, height int) (Device, error)
	// Setup prepares dev for rows [y, y+height).
	Setup func(dev Device, y, height int) error
	// Destroy releases a device returned by Create.
	Destroy func(dev Device)
}

// NoBufDeviceProcs returns hooks that render straight into the target.
// Pattern command lists need no intermediate band buffer.
func NoBufDeviceProcs() BufDeviceProcs {
	return BufDeviceProcs{
		Create:  func(target Device, _, _ int) (Device, error) { return target, nil },
		Setup:   func(Device, int, int) error { return nil },
		Destroy: func(Device) {},
	}
}

// BandParams describes the area a deferred writer records.
type BandParams struct {
	Width, Height int
	// BandHeight is the height of one band; 0 means a single band.
	BandHeight       int
	BufProcs         BufDeviceProcs
	UsesTransparency bool
	// Alloc supplies memory once commands outgrow the scratch buffer.
	// Nil means the Go heap.
	Alloc Allocator
}

// DeferredWriterFactory creates a writer recording for target into
// scratch. The scratch buffer stays owned by the caller.
type DeferredWriterFactory func(target Device, scratch []byte, band BandParams) (DeferredWriter, error)

var (
	writersMu sync.RWMutex
	writers   = make(map[string]DeferredWriterFactory)
)

// RegisterDeferredWriter makes a deferred writer available by name. It
// is meant to be called from init, the way database/sql drivers
// register:
//
//	func init() {
//	    pattern.RegisterDeferredWriter("clist", newWriter)
//	}
//
// RegisterDeferredWriter panics if factory is nil or name is taken.
func RegisterDeferredWriter(name string, factory DeferredWriterFactory) {
	writersMu.Lock()
	defer writersMu.Unlock()
	if factory == nil {
		panic("pattern: RegisterDeferredWriter factory is nil")
	}
	if _, dup := writers[name]; dup {
		panic("pattern: RegisterDeferredWriter called twice for " + name)
	}
	writers[name] = factory
}

// UnregisterDeferredWriter removes a writer. It is meant for tests.
func UnregisterDeferredWriter(name string) {
	writersMu.Lock()
	defer writersMu.Unlock()
	delete(writers, name)
}

// DeferredWriters returns the registered writer names, sorted.
func DeferredWriters() []string {
	writersMu.RLock()
	defer writersMu.RUnlock()
	names := make([]string, 0, len(writers))
	for name := range writers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func deferredWriterFactory(name string) (DeferredWriterFactory, error) {
	writersMu.RLock()
	f, ok := writers[name]
	writersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("pattern: deferred writer %q (forgotten import?): %w", name, ErrUnregistered)
	}
	return f, nil
}

// deferredAccumulator records a pattern cell as a command list.
type deferredAccumulator struct {
	DeferredWriter

	inst    *Instance
	name    string
	info    DeviceInfo
	target  *DeviceRef
	alloc   Allocator
	scratch []byte
	closed  bool
}

func newDeferredAccumulator(inst *Instance, target *DeviceRef, alloc Allocator, name string) *deferredAccumulator {
	info := target.Device().Info()
	info.Name = "pattern clist accumulator"
	info.Width, info.Height = inst.Size.X, inst.Size.Y
	return &deferredAccumulator{
		inst:   inst,
		name:   name,
		info:   info,
		target: target.Retain(),
		alloc:  alloc,
	}
}

// Info implements Device. It is valid before Open.
func (a *deferredAccumulator) Info() DeviceInfo { return a.info }

// Open charges the scratch buffer and opens a writer.
func (a *deferredAccumulator) Open() error {
	if a.DeferredWriter != nil {
		return nil
	}
	factory, err := deferredWriterFactory(a.name)
	if err != nil {
		return err
	}
	scratch, err := a.alloc.Alloc(DeferredScratchSize, "pattern clist scratch")
	if err != nil {
		return err
	}
	band := BandParams{
		Width:            a.info.Width,
		Height:           a.info.Height,
		BufProcs:         NoBufDeviceProcs(),
		UsesTransparency: a.inst.Template.UsesTransparency,
		Alloc:            a.alloc,
	}
	w, err := factory(a.target.Device(), scratch, band)
	if err == nil {
		err = w.Open()
	}
	if err != nil {
		a.alloc.Free(scratch, "pattern clist scratch")
		return err
	}
	a.scratch = scratch
	a.DeferredWriter = w
	return nil
}

// capture finalizes the command list. The accounted size is the
// serialized data size.
func (a *deferredAccumulator) capture() (*Payload, error) {
	n, err := a.Finalize()
	if err != nil {
		return nil, err
	}
	return &Payload{
		Instance: a.inst,
		Commands: a.Commands(),
		Depth:    a.info.Color.Depth,
		BitsUsed: n,
	}, nil
}

func (a *deferredAccumulator) abort() error {
	if a.DeferredWriter == nil {
		return nil
	}
	return a.Discard()
}

// Close closes the writer, frees the scratch buffer and releases the
// target. Finished commands handed out by Commands are unaffected.
func (a *deferredAccumulator) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	var errs []error
	if a.DeferredWriter != nil {
		errs = append(errs, a.DeferredWriter.Close())
	}
	if a.scratch != nil {
		a.alloc.Free(a.scratch, "pattern clist scratch")
		a.scratch = nil
	}
	errs = append(errs, a.target.Release())
	return errors.Join(errs...)
}
