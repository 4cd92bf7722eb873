package compose

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Context errors.
var (
	// ErrNilDevice is returned when a Context is created without a device or queue.
	ErrNilDevice = errors.New("compose: nil device or queue")

	// ErrNoProviderHAL is returned when a device provider does not expose HAL types.
	ErrNoProviderHAL = errors.New("compose: provider does not expose HAL device and queue")

	// ErrBackendNotRegistered is returned by OpenContext for an unknown backend.
	ErrBackendNotRegistered = errors.New("compose: backend not registered")

	// ErrNoAdapter is returned when a backend exposes no adapters.
	ErrNoAdapter = errors.New("compose: no GPU adapter available")
)

// Context bundles the GPU device and queue every compose resource is
// created on, together with device limits and debug flags.
//
// A Context is used from a single goroutine, like the resources created
// on it.
type Context struct {
	device   hal.Device
	queue    hal.Queue
	instance hal.Instance

	limits         gputypes.Limits
	maxTextureSize int
	surfaceFormat  gputypes.TextureFormat
	debug          DebugFlags

	inFlight []submission
	retired  []retiredResource

	// owned is true when Close must destroy the device and instance.
	owned bool
}

// NewContext wraps an existing HAL device and queue. The caller keeps
// ownership of both.
func NewContext(device hal.Device, queue hal.Queue, opts ...ContextOption) (*Context, error) {
	if device == nil || queue == nil {
		return nil, ErrNilDevice
	}
	o := defaultContextOptions()
	for _, opt := range opts {
		opt(&o)
	}
	c := &Context{
		device: device,
		queue:  queue,
		limits: o.limits,
	}
	c.apply(o)
	return c, nil
}

// NewContextFromProvider shares the device of a host application. The
// provider must implement HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue.
func NewContextFromProvider(provider gpucontext.DeviceProvider, opts ...ContextOption) (*Context, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoProviderHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is %T", ErrNoProviderHAL, hp.HalDevice())
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is %T", ErrNoProviderHAL, hp.HalQueue())
	}
	opts = append([]ContextOption{WithSurfaceFormat(provider.SurfaceFormat())}, opts...)
	return NewContext(device, queue, opts...)
}

// OpenContext creates an instance of a registered HAL backend, opens its
// first adapter and returns a Context owning the resulting device.
func OpenContext(backend gputypes.Backend, opts ...ContextOption) (*Context, error) {
	b, ok := hal.GetBackend(backend)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBackendNotRegistered, backend)
	}
	instance, err := b.CreateInstance(&hal.InstanceDescriptor{})
	if err != nil {
		return nil, WrapError(DomainSystem, "create instance", nil, err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	exposed := adapters[0]
	open, err := exposed.Adapter.Open(0, exposed.Capabilities.Limits)
	if err != nil {
		instance.Destroy()
		return nil, WrapError(DomainSystem, "open adapter", nil, err)
	}

	opts = append([]ContextOption{WithLimits(exposed.Capabilities.Limits)}, opts...)
	c, err := NewContext(open.Device, open.Queue, opts...)
	if err != nil {
		open.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	c.instance = instance
	c.owned = true

	Logger().Info("compose: context opened",
		"backend", backend.String(),
		"adapter", exposed.Info.Name,
		"maxTextureSize", c.maxTextureSize)
	return c, nil
}

func (c *Context) apply(o contextOptions) {
	c.maxTextureSize = int(o.limits.MaxTextureDimension2D)
	if o.maxTextureSize > 0 {
		c.maxTextureSize = o.maxTextureSize
	}
	c.surfaceFormat = o.surfaceFormat
	c.debug = o.debug
}

// Device returns the HAL device.
func (c *Context) Device() hal.Device { return c.device }

// Queue returns the HAL queue.
func (c *Context) Queue() hal.Queue { return c.queue }

// Limits returns the device limits the context was configured with.
func (c *Context) Limits() gputypes.Limits { return c.limits }

// MaxTextureSize returns the largest width or height of a single texture.
// Larger textures are sliced.
func (c *Context) MaxTextureSize() int { return c.maxTextureSize }

// SurfaceFormat returns the preferred render target format.
func (c *Context) SurfaceFormat() gputypes.TextureFormat { return c.surfaceFormat }

// Debug returns the active debug flags.
func (c *Context) Debug() DebugFlags { return c.debug }

// Close waits for the device to go idle, runs every retired release and,
// if the context opened the device itself, destroys it.
func (c *Context) Close() {
	if c.device == nil {
		return
	}
	if err := c.device.WaitIdle(); err != nil {
		Logger().Warn("compose: wait idle on close", "err", err)
	}
	c.PollCompleted()
	for _, r := range c.retired {
		r.release()
	}
	c.retired = nil
	if c.owned {
		c.device.Destroy()
		if c.instance != nil {
			c.instance.Destroy()
		}
	}
	c.device = nil
	c.queue = nil
	c.instance = nil
}
