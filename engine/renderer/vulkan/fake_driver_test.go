package vulkan

import (
	"fmt"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkstage/engine/core"
)

type fakeBuffer struct {
	id        int
	size      uint64
	usage     vk.BufferUsageFlags
	data      []byte
	mapped    bool
	destroyed bool
}

func (b *fakeBuffer) Size() uint64 { return b.size }

type fakeImage struct {
	width, height, layers uint32
	views                 []vk.Format
	destroyed             bool
}

func (i *fakeImage) Extent() (uint32, uint32, uint32) { return i.width, i.height, i.layers }

type fakeFence struct {
	id int
	// unsignaledPolls is how many polls report the fence as not signaled
	// before it signals.
	unsignaledPolls int
	submitted       bool
	signaled        bool
	destroyed       bool
}

type fakeCommandBuffer struct {
	id        int
	recording bool
	ended     bool
	freed     bool
	commands  []string
}

type fakePool struct {
	resets    int
	destroyed bool
}

// fakeDriver records calls and lets tests script fences and failures.
type fakeDriver struct {
	limits DeviceLimits
	calls  []string
	nextID int

	buffers  []*fakeBuffer
	images   []*fakeImage
	fences   []*fakeFence
	commands []*fakeCommandBuffer
	pools    []*fakePool

	// fencePolls is given to every new fence as its unsignaled poll count.
	fencePolls int
	// waitSignals makes WaitFence succeed instead of timing out.
	waitSignals bool

	failures map[string]error

	prematureFrees int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		limits:      DeviceLimits{MinUniformBufferOffsetAlignment: 256},
		failures:    map[string]error{},
		waitSignals: true,
	}
}

func (d *fakeDriver) call(name string) error {
	d.calls = append(d.calls, name)
	return d.failures[name]
}

func (d *fakeDriver) id() int {
	d.nextID++
	return d.nextID
}

func (d *fakeDriver) Limits() DeviceLimits { return d.limits }

func (d *fakeDriver) CreateBuffer(size uint64, usage vk.BufferUsageFlags, properties vk.MemoryPropertyFlags) (Buffer, error) {
	if err := d.call("CreateBuffer"); err != nil {
		return nil, err
	}
	b := &fakeBuffer{id: d.id(), size: size, usage: usage, data: make([]byte, size)}
	d.buffers = append(d.buffers, b)
	return b, nil
}

func (d *fakeDriver) MapBuffer(b Buffer) ([]byte, error) {
	if err := d.call("MapBuffer"); err != nil {
		return nil, err
	}
	fb := b.(*fakeBuffer)
	fb.mapped = true
	return fb.data, nil
}

func (d *fakeDriver) UnmapBuffer(b Buffer) {
	d.calls = append(d.calls, "UnmapBuffer")
	b.(*fakeBuffer).mapped = false
}

func (d *fakeDriver) DestroyBuffer(b Buffer) {
	d.calls = append(d.calls, "DestroyBuffer")
	b.(*fakeBuffer).destroyed = true
}

func (d *fakeDriver) CreateImage(width, height, layers uint32, format vk.Format, usage vk.ImageUsageFlags, viewFormats []vk.Format) (Image, error) {
	if err := d.call("CreateImage"); err != nil {
		return nil, err
	}
	img := &fakeImage{width: width, height: height, layers: layers, views: viewFormats}
	d.images = append(d.images, img)
	return img, nil
}

func (d *fakeDriver) DestroyImage(img Image) {
	d.calls = append(d.calls, "DestroyImage")
	img.(*fakeImage).destroyed = true
}

func (d *fakeDriver) CreateFence() (Fence, error) {
	if err := d.call("CreateFence"); err != nil {
		return nil, err
	}
	f := &fakeFence{id: d.id(), unsignaledPolls: d.fencePolls}
	d.fences = append(d.fences, f)
	return f, nil
}

func (d *fakeDriver) FenceSignaled(f Fence) (bool, error) {
	if err := d.call("FenceSignaled"); err != nil {
		return false, err
	}
	ff := f.(*fakeFence)
	if !ff.submitted {
		return false, nil
	}
	if ff.unsignaledPolls > 0 {
		ff.unsignaledPolls--
		return false, nil
	}
	ff.signaled = true
	return true, nil
}

func (d *fakeDriver) WaitFence(f Fence, timeout time.Duration) error {
	if err := d.call("WaitFence"); err != nil {
		return err
	}
	ff := f.(*fakeFence)
	if !d.waitSignals {
		return core.NewAssetError(core.ErrDeviceLost, "fence wait", "timed out after %s", timeout)
	}
	ff.signaled = true
	ff.unsignaledPolls = 0
	return nil
}

func (d *fakeDriver) DestroyFence(f Fence) {
	d.calls = append(d.calls, "DestroyFence")
	ff := f.(*fakeFence)
	if ff.submitted && !ff.signaled {
		d.prematureFrees++
	}
	ff.destroyed = true
}

func (d *fakeDriver) CreateCommandPool(transient bool) (CommandPool, error) {
	if err := d.call("CreateCommandPool"); err != nil {
		return nil, err
	}
	p := &fakePool{}
	d.pools = append(d.pools, p)
	return p, nil
}

func (d *fakeDriver) ResetCommandPool(p CommandPool) error {
	if err := d.call("ResetCommandPool"); err != nil {
		return err
	}
	p.(*fakePool).resets++
	return nil
}

func (d *fakeDriver) DestroyCommandPool(p CommandPool) {
	d.calls = append(d.calls, "DestroyCommandPool")
	p.(*fakePool).destroyed = true
}

func (d *fakeDriver) AllocateCommandBuffer(p CommandPool) (CommandBuffer, error) {
	if err := d.call("AllocateCommandBuffer"); err != nil {
		return nil, err
	}
	cb := &fakeCommandBuffer{id: d.id()}
	d.commands = append(d.commands, cb)
	return cb, nil
}

func (d *fakeDriver) FreeCommandBuffer(p CommandPool, cb CommandBuffer) {
	d.calls = append(d.calls, "FreeCommandBuffer")
	cb.(*fakeCommandBuffer).freed = true
}

func (d *fakeDriver) BeginCommandBuffer(cb CommandBuffer, oneTimeSubmit bool) error {
	if err := d.call("BeginCommandBuffer"); err != nil {
		return err
	}
	cb.(*fakeCommandBuffer).recording = true
	return nil
}

func (d *fakeDriver) EndCommandBuffer(cb CommandBuffer) error {
	if err := d.call("EndCommandBuffer"); err != nil {
		return err
	}
	fcb := cb.(*fakeCommandBuffer)
	fcb.recording = false
	fcb.ended = true
	return nil
}

func (d *fakeDriver) record(cb CommandBuffer, command string) {
	fcb := cb.(*fakeCommandBuffer)
	if !fcb.recording {
		panic("command recorded outside of recording: " + command)
	}
	fcb.commands = append(fcb.commands, command)
}

func (d *fakeDriver) CmdCopyBuffer(cb CommandBuffer, src Buffer, srcOffset uint64, dst Buffer, dstOffset uint64, size uint64) {
	d.record(cb, fmt.Sprintf("copy %d+%d -> %d+%d (%d)", src.(*fakeBuffer).id, srcOffset, dst.(*fakeBuffer).id, dstOffset, size))
}

func (d *fakeDriver) CmdBufferBarrier(cb CommandBuffer, b Buffer, srcStage, dstStage vk.PipelineStageFlags, srcAccess, dstAccess vk.AccessFlags) {
	d.record(cb, fmt.Sprintf("buffer barrier %d stage %#x->%#x access %#x->%#x", b.(*fakeBuffer).id, uint32(srcStage), uint32(dstStage), uint32(srcAccess), uint32(dstAccess)))
}

func (d *fakeDriver) CmdCopyBufferToImage(cb CommandBuffer, src Buffer, img Image) {
	d.record(cb, fmt.Sprintf("copy %d -> image", src.(*fakeBuffer).id))
}

func (d *fakeDriver) CmdImageBarrier(cb CommandBuffer, img Image, oldLayout, newLayout vk.ImageLayout, srcStage, dstStage vk.PipelineStageFlags, srcAccess, dstAccess vk.AccessFlags) {
	d.record(cb, fmt.Sprintf("image barrier %d->%d stage %#x->%#x access %#x->%#x", oldLayout, newLayout, uint32(srcStage), uint32(dstStage), uint32(srcAccess), uint32(dstAccess)))
}

func (d *fakeDriver) Submit(cb CommandBuffer, f Fence) error {
	if err := d.call("Submit"); err != nil {
		return err
	}
	if !cb.(*fakeCommandBuffer).ended {
		panic("submitted a command buffer still recording")
	}
	f.(*fakeFence).submitted = true
	return nil
}

func (d *fakeDriver) WaitIdle() error {
	if err := d.call("WaitIdle"); err != nil {
		return err
	}
	for _, f := range d.fences {
		if f.submitted {
			f.signaled = true
		}
	}
	return nil
}

func (d *fakeDriver) count(name string) int {
	n := 0
	for _, c := range d.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (d *fakeDriver) indexOf(name string) int {
	for i, c := range d.calls {
		if c == name {
			return i
		}
	}
	return -1
}
