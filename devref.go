package pattern

import "fmt"

// DeviceRef is a shared handle to a device. Every holder retains it and
// releases it when done; the device is closed when the last owning
// reference goes away.
//
// Graphics states, accumulators and scratch states each hold their own
// reference, so a device survives a restore that drops the state that
// installed it.
type DeviceRef struct {
	dev   Device
	refs  int
	owned bool
}

// NewDeviceRef returns a handle with one reference. When owned is true
// the device is closed on the final Release.
func NewDeviceRef(dev Device, owned bool) *DeviceRef {
	return &DeviceRef{dev: dev, refs: 1, owned: owned}
}

// Device returns the referenced device.
func (r *DeviceRef) Device() Device { return r.dev }

// Refs returns the current reference count.
func (r *DeviceRef) Refs() int { return r.refs }

// Retain adds a reference and returns r.
func (r *DeviceRef) Retain() *DeviceRef {
	r.refs++
	return r
}

// Release drops a reference. Releasing past zero is an error.
func (r *DeviceRef) Release() error {
	if r.refs <= 0 {
		return fmt.Errorf("pattern: release of dead %s device: %w", r.dev.Info().Name, ErrFatal)
	}
	r.refs--
	if r.refs == 0 && r.owned {
		return r.dev.Close()
	}
	return nil
}

// KeepAlive retains r for the duration of a scope and returns the
// function that ends it.
//
//	end := ref.KeepAlive()
//	defer end()
func (r *DeviceRef) KeepAlive() (end func() error) {
	r.Retain()
	done := false
	return func() error {
		if done {
			return nil
		}
		done = true
		return r.Release()
	}
}
