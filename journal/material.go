package journal

import (
	_ "embed"
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compose"
	"github.com/gogpu/compose/texture"
)

// MaxLayers is the number of texture layers a material can sample.
const MaxLayers = 2

const uniformSize = 16

//go:embed shaders/quad_solid.wgsl
var quadSolidShader string

//go:embed shaders/quad_layer1.wgsl
var quadLayer1Shader string

//go:embed shaders/quad_layer2.wgsl
var quadLayer2Shader string

// shaderSources is indexed by layer count.
var shaderSources = [MaxLayers + 1]string{quadSolidShader, quadLayer1Shader, quadLayer2Shader}

var compiled [MaxLayers + 1]struct {
	once sync.Once
	code []uint32
	err  error
}

// shaderCode returns the SPIR-V for the quad shader sampling nLayers
// layers, compiling it on first use.
func shaderCode(nLayers int) ([]uint32, error) {
	c := &compiled[nLayers]
	c.once.Do(func() {
		c.code, c.err = compileSPIRV(shaderSources[nLayers])
	})
	return c.code, c.err
}

func compileSPIRV(src string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("failed to compile shader: %w", err)
	}
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	return code, nil
}

// MaterialOption configures a Material.
type MaterialOption func(*Material)

// WithLayers sets the textures the material samples, in layer order.
func WithLayers(layers ...texture.Texture) MaterialOption {
	return func(m *Material) {
		m.layers = slices.Clone(layers)
	}
}

// WithBlending enables or disables premultiplied source-over blending.
// Blending is on by default.
func WithBlending(enabled bool) MaterialOption {
	return func(m *Material) {
		m.blend = enabled
	}
}

// programs holds the GPU objects shared by a material and the variants
// derived from it.
type programs struct {
	device  hal.Device
	nLayers int
	blend   bool

	sampler    hal.Sampler
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	shader     hal.ShaderModule
	pipelines  map[gputypes.TextureFormat]hal.RenderPipeline
}

// Material is the default Pipeline: a premultiplied color modulated by
// up to MaxLayers textures. A material is immutable; WithLayer0 derives
// variants that share its GPU state.
type Material struct {
	ctx    *compose.Context
	color  compose.RGBA
	layers []texture.Texture
	blend  bool

	prog    *programs
	uniform hal.Buffer

	bindGroup  hal.BindGroup
	boundViews []hal.TextureView
	dirty      bool
	unwatch    []func()

	root    *Material
	derived map[texture.Texture]*Material
}

var _ Pipeline = (*Material)(nil)

// NewMaterial creates a material drawing color, straight alpha.
func NewMaterial(ctx *compose.Context, color compose.RGBA, opts ...MaterialOption) (*Material, error) {
	m := &Material{ctx: ctx, color: color, blend: true}
	for _, opt := range opts {
		opt(m)
	}
	if len(m.layers) > MaxLayers {
		return nil, compose.NewError(compose.DomainTexture, "create material", compose.ErrUnsupported,
			fmt.Sprintf("%d layers, at most %d supported", len(m.layers), MaxLayers))
	}
	prog, err := newPrograms(ctx.Device(), len(m.layers), m.blend)
	if err != nil {
		return nil, err
	}
	m.prog = prog

	uniform, err := ctx.Device().CreateBuffer(&hal.BufferDescriptor{
		Label: "compose-material-uniform",
		Size:  uniformSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		prog.destroy()
		return nil, compose.WrapError(compose.DomainBuffer, "create material", compose.HALErrorKind(err), err)
	}
	m.uniform = uniform
	if err := ctx.Queue().WriteBuffer(uniform, 0, colorUniform(color)); err != nil {
		m.Release()
		return nil, compose.WrapError(compose.DomainBuffer, "write material uniform", nil, err)
	}
	m.watch()
	return m, nil
}

func colorUniform(c compose.RGBA) []byte {
	p := c.Premultiply()
	data := make([]byte, uniformSize)
	for i, v := range [4]float64{p.R, p.G, p.B, p.A} {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(float32(v)))
	}
	return data
}

func newPrograms(device hal.Device, nLayers int, blend bool) (*programs, error) {
	p := &programs{
		device:    device,
		nLayers:   nLayers,
		blend:     blend,
		pipelines: make(map[gputypes.TextureFormat]hal.RenderPipeline),
	}
	entries := []gputypes.BindGroupLayoutEntry{{
		Binding:    0,
		Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	}}
	if nLayers > 0 {
		sampler, err := device.CreateSampler(&hal.SamplerDescriptor{
			Label:        "compose-material-sampler",
			AddressModeU: gputypes.AddressModeClampToEdge,
			AddressModeV: gputypes.AddressModeClampToEdge,
			AddressModeW: gputypes.AddressModeClampToEdge,
			MagFilter:    gputypes.FilterModeLinear,
			MinFilter:    gputypes.FilterModeLinear,
			MipmapFilter: gputypes.FilterModeNearest,
			LodMaxClamp:  32,
			Anisotropy:   1,
		})
		if err != nil {
			return nil, compose.WrapError(compose.DomainTexture, "create sampler", compose.HALErrorKind(err), err)
		}
		p.sampler = sampler
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    1,
			Visibility: gputypes.ShaderStageFragment,
			Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
		})
		for i := 0; i < nLayers; i++ {
			entries = append(entries, gputypes.BindGroupLayoutEntry{
				Binding:    uint32(2 + i),
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			})
		}
	}

	layout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "compose-material-bind-layout",
		Entries: entries,
	})
	if err != nil {
		p.destroy()
		return nil, compose.WrapError(compose.DomainTexture, "create bind group layout", compose.HALErrorKind(err), err)
	}
	p.bindLayout = layout

	pipeLayout, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "compose-material-pipe-layout",
		BindGroupLayouts: []hal.BindGroupLayout{layout},
	})
	if err != nil {
		p.destroy()
		return nil, compose.WrapError(compose.DomainTexture, "create pipeline layout", compose.HALErrorKind(err), err)
	}
	p.pipeLayout = pipeLayout
	return p, nil
}

// pipeline returns the render pipeline for format, creating the shader
// module and pipeline on first use.
func (p *programs) pipeline(format gputypes.TextureFormat) (hal.RenderPipeline, error) {
	if rp, ok := p.pipelines[format]; ok {
		return rp, nil
	}
	if p.shader == nil {
		code, err := shaderCode(p.nLayers)
		if err != nil {
			return nil, err
		}
		shader, err := p.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
			Label:  fmt.Sprintf("compose-quad-%d", p.nLayers),
			Source: hal.ShaderSource{SPIRV: code},
		})
		if err != nil {
			return nil, fmt.Errorf("create quad shader: %w", err)
		}
		p.shader = shader
	}

	var blend *gputypes.BlendState
	if p.blend {
		b := gputypes.BlendStatePremultiplied()
		blend = &b
	}
	rp, err := p.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  fmt.Sprintf("compose-quad-%d", p.nLayers),
		Layout: p.pipeLayout,
		Vertex: hal.VertexState{
			Module:     p.shader,
			EntryPoint: "vs_main",
			Buffers:    []gputypes.VertexBufferLayout{quadVertexLayout(p.nLayers)},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
		Fragment: &hal.FragmentState{
			Module:     p.shader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{{
				Format:    format,
				Blend:     blend,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create quad pipeline: %w", err)
	}
	p.pipelines[format] = rp
	return rp, nil
}

// quadVertexLayout describes a position followed by one texture
// coordinate pair per layer.
func quadVertexLayout(nLayers int) gputypes.VertexBufferLayout {
	attrs := make([]gputypes.VertexAttribute, 0, 1+nLayers)
	for i := 0; i <= nLayers; i++ {
		attrs = append(attrs, gputypes.VertexAttribute{
			Format:         gputypes.VertexFormatFloat32x2,
			Offset:         uint64(i * 8),
			ShaderLocation: uint32(i),
		})
	}
	return gputypes.VertexBufferLayout{
		ArrayStride: uint64(8 + 8*nLayers),
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes:  attrs,
	}
}

func (p *programs) destroy() {
	for _, rp := range p.pipelines {
		p.device.DestroyRenderPipeline(rp)
	}
	p.pipelines = nil
	if p.shader != nil {
		p.device.DestroyShaderModule(p.shader)
		p.shader = nil
	}
	if p.pipeLayout != nil {
		p.device.DestroyPipelineLayout(p.pipeLayout)
		p.pipeLayout = nil
	}
	if p.bindLayout != nil {
		p.device.DestroyBindGroupLayout(p.bindLayout)
		p.bindLayout = nil
	}
	if p.sampler != nil {
		p.device.DestroySampler(p.sampler)
		p.sampler = nil
	}
}

// Color returns the material color.
func (m *Material) Color() compose.RGBA { return m.color }

// Blending reports whether the material blends with the destination.
func (m *Material) Blending() bool { return m.blend }

// Layers returns the number of texture layers.
func (m *Material) Layers() int { return len(m.layers) }

// Layer returns the texture of layer i.
func (m *Material) Layer(i int) texture.Texture { return m.layers[i] }

// RenderPipeline returns the pipeline drawing into format.
func (m *Material) RenderPipeline(format gputypes.TextureFormat, nLayers int) (hal.RenderPipeline, error) {
	if nLayers != len(m.layers) {
		return nil, fmt.Errorf("journal: material samples %d layers, quad has %d", len(m.layers), nLayers)
	}
	return m.prog.pipeline(format)
}

// BindGroup returns the material's resources, rebuilding them when a
// layer texture changed storage.
func (m *Material) BindGroup() (hal.BindGroup, error) {
	views := make([]hal.TextureView, len(m.layers))
	for i, l := range m.layers {
		views[i] = texture.View(l)
		if views[i] == nil {
			return nil, compose.NewError(compose.DomainTexture, "bind material", compose.ErrUnsupported,
				fmt.Sprintf("layer %d has no single view; sliced textures are drawn per slice", i))
		}
	}
	if m.bindGroup != nil && !m.dirty && slices.Equal(views, m.boundViews) {
		return m.bindGroup, nil
	}

	entries := []gputypes.BindGroupEntry{{
		Binding:  0,
		Resource: gputypes.BufferBinding{Buffer: m.uniform.NativeHandle(), Offset: 0, Size: uniformSize},
	}}
	if len(m.layers) > 0 {
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  1,
			Resource: gputypes.SamplerBinding{Sampler: m.prog.sampler.NativeHandle()},
		})
		for i, v := range views {
			entries = append(entries, gputypes.BindGroupEntry{
				Binding:  uint32(2 + i),
				Resource: gputypes.TextureViewBinding{TextureView: v.NativeHandle()},
			})
		}
	}
	bg, err := m.ctx.Device().CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "compose-material-bind-group",
		Layout:  m.prog.bindLayout,
		Entries: entries,
	})
	if err != nil {
		return nil, compose.WrapError(compose.DomainTexture, "bind material", compose.HALErrorKind(err), err)
	}
	if old := m.bindGroup; old != nil {
		// The old group may still be referenced by an in-flight submission.
		dev := m.ctx.Device()
		m.ctx.Retire(func() { dev.DestroyBindGroup(old) })
	}
	m.bindGroup = bg
	m.boundViews = views
	m.dirty = false
	return bg, nil
}

// SolidColor returns the material color when no textures are sampled
// and the result does not depend on the destination.
func (m *Material) SolidColor() (compose.RGBA, bool) {
	if len(m.layers) > 0 || (m.blend && !m.color.IsOpaque()) {
		return compose.RGBA{}, false
	}
	return m.color, true
}

// WithLayer0 returns a variant of m sampling t as its first layer. A
// material without layers is returned unchanged. Variants are cached,
// so equal requests return the same Pipeline and can be batched.
func (m *Material) WithLayer0(t texture.Texture) Pipeline {
	if len(m.layers) == 0 || m.layers[0] == t {
		return m
	}
	root := m
	if m.root != nil {
		root = m.root
	}
	if root.layers[0] == t {
		return root
	}
	if d, ok := root.derived[t]; ok {
		return d
	}
	layers := slices.Clone(root.layers)
	layers[0] = t
	d := &Material{
		ctx:     root.ctx,
		color:   root.color,
		layers:  layers,
		blend:   root.blend,
		prog:    root.prog,
		uniform: root.uniform,
		root:    root,
	}
	d.watch()
	if root.derived == nil {
		root.derived = make(map[texture.Texture]*Material)
	}
	root.derived[t] = d
	return d
}

// PrePaint brings pixmap layers up to date.
func (m *Material) PrePaint() {
	for _, l := range m.layers {
		texture.PrePaint(l)
	}
}

// watch marks the bind group dirty when a pixmap layer switches storage.
func (m *Material) watch() {
	for _, l := range m.layers {
		if p, ok := l.(*texture.Pixmap); ok {
			m.unwatch = append(m.unwatch, p.OnStorageChange(func() { m.dirty = true }))
		}
	}
}

func (m *Material) releaseBindings() {
	for _, remove := range m.unwatch {
		remove()
	}
	m.unwatch = nil
	if m.bindGroup != nil {
		m.ctx.Device().DestroyBindGroup(m.bindGroup)
		m.bindGroup = nil
	}
}

// Release frees the material's GPU resources. Variants returned by
// WithLayer0 are released with the material they were derived from;
// releasing a variant directly does nothing.
func (m *Material) Release() {
	if m.root != nil || m.prog == nil {
		return
	}
	for _, d := range m.derived {
		d.releaseBindings()
	}
	m.derived = nil
	m.releaseBindings()
	if m.uniform != nil {
		m.ctx.Device().DestroyBuffer(m.uniform)
		m.uniform = nil
	}
	m.prog.destroy()
	m.prog = nil
}
