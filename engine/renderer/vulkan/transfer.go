package vulkan

import (
	"errors"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/google/uuid"
	"github.com/spaghettifunk/vkstage/engine/containers"
	"github.com/spaghettifunk/vkstage/engine/core"
)

type TransferState int

const (
	TransferRecording TransferState = iota
	TransferSubmitted
	TransferCompleted
	// TransferAborted transfers failed to reach the queue; their resources
	// are already released.
	TransferAborted
)

func (s TransferState) String() string {
	switch s {
	case TransferRecording:
		return "recording"
	case TransferSubmitted:
		return "submitted"
	case TransferCompleted:
		return "completed"
	case TransferAborted:
		return "aborted"
	}
	return "unknown"
}

// stagingResources is everything one transfer owns until its fence signals.
type stagingResources struct {
	buffer Buffer
	cmd    CommandBuffer
	fence  Fence
}

// StagingTransfer is a host visible staging buffer plus the one time command
// buffer that copies it to its destinations. Fill Bytes, record copies, then
// Submit. The resources are released by the owning TransferManager once the
// device is done with them.
type StagingTransfer struct {
	ID    uuid.UUID
	State TransferState

	stagingResources

	manager     *TransferManager
	data        []byte
	size        uint64
	submittedAt time.Time
}

// Bytes is the mapped staging memory. It is nil once the transfer was
// submitted.
func (t *StagingTransfer) Bytes() []byte {
	return t.data
}

func (t *StagingTransfer) Size() uint64 {
	return t.size
}

func (t *StagingTransfer) recording(op string) error {
	if t.State != TransferRecording {
		err := core.NewAssetError(core.ErrDataIntegrity, op, "transfer %s is %s", t.ID, t.State)
		core.LogError("%s", err)
		return err
	}
	return nil
}

// Copy records a copy of the first size staged bytes to the start of dst,
// followed by a barrier making them visible to dstStage and dstAccess.
func (t *StagingTransfer) Copy(dst Buffer, size uint64, dstStage vk.PipelineStageFlags, dstAccess vk.AccessFlags) error {
	return t.CopyRegion(0, dst, 0, size, dstStage, dstAccess)
}

// CopyRegion is Copy with explicit source and destination offsets.
func (t *StagingTransfer) CopyRegion(srcOffset uint64, dst Buffer, dstOffset uint64, size uint64, dstStage vk.PipelineStageFlags, dstAccess vk.AccessFlags) error {
	if err := t.recording("transfer copy"); err != nil {
		return err
	}
	if srcOffset+size > t.size || dstOffset+size > dst.Size() {
		err := core.NewAssetError(core.ErrDataIntegrity, "transfer copy", "copy of %d bytes from %d to %d does not fit (staging %d, destination %d)",
			size, srcOffset, dstOffset, t.size, dst.Size())
		core.LogError("%s", err)
		return err
	}
	d := t.manager.driver
	d.CmdCopyBuffer(t.cmd, t.buffer, srcOffset, dst, dstOffset, size)
	d.CmdBufferBarrier(t.cmd, dst,
		vk.PipelineStageFlags(vk.PipelineStageTransferBit), dstStage,
		vk.AccessFlags(vk.AccessTransferWriteBit), dstAccess)
	return nil
}

// CopyToImage records the upload of the staged bytes into every layer of
// img. The image ends up in shader read only layout for the fragment stage.
func (t *StagingTransfer) CopyToImage(img Image) error {
	if err := t.recording("transfer copy image"); err != nil {
		return err
	}
	w, h, layers := img.Extent()
	if need := uint64(w) * uint64(h) * uint64(layers) * 4; need > t.size {
		err := core.NewAssetError(core.ErrDataIntegrity, "transfer copy image", "image needs %d bytes, staging holds %d", need, t.size)
		core.LogError("%s", err)
		return err
	}

	d := t.manager.driver
	d.CmdImageBarrier(t.cmd, img,
		vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal,
		vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		0, vk.AccessFlags(vk.AccessTransferWriteBit))
	d.CmdCopyBufferToImage(t.cmd, t.buffer, img)
	d.CmdImageBarrier(t.cmd, img,
		vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal,
		vk.PipelineStageFlags(vk.PipelineStageTransferBit), vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
		vk.AccessFlags(vk.AccessTransferWriteBit), vk.AccessFlags(vk.AccessShaderReadBit))
	return nil
}

// Submit ends recording, queues the command buffer with the transfer fence
// and unmaps the staging memory. When the device rejects the command buffer
// the transfer is aborted and released at once.
func (t *StagingTransfer) Submit() error {
	if err := t.recording("transfer submit"); err != nil {
		return err
	}
	m := t.manager
	if err := m.driver.EndCommandBuffer(t.cmd); err != nil {
		m.discard(t)
		return err
	}
	if err := m.driver.Submit(t.cmd, t.fence); err != nil {
		m.discard(t)
		return err
	}
	m.driver.UnmapBuffer(t.buffer)
	t.data = nil
	t.State = TransferSubmitted
	t.submittedAt = m.now()
	m.metrics.RecordSubmitted()
	core.LogDebug("transfer %s submitted (%d bytes)", t.ID, t.size)
	return nil
}

// TransferOption configures a TransferManager.
type TransferOption func(*TransferManager)

// WithMetrics makes the manager record into m instead of a private instance.
func WithMetrics(m *core.UploadMetrics) TransferOption {
	return func(tm *TransferManager) {
		tm.metrics = m
	}
}

// WithFenceTimeout sets the default timeout used by Wait when none is given.
func WithFenceTimeout(d time.Duration) TransferOption {
	return func(tm *TransferManager) {
		tm.fenceTimeout = d
	}
}

// WithClock replaces time.Now for latency accounting.
func WithClock(now func() time.Time) TransferOption {
	return func(tm *TransferManager) {
		tm.now = now
	}
}

// TransferManager owns every staging transfer from creation until the
// device signals its fence. It is not safe for concurrent use.
type TransferManager struct {
	driver  Driver
	pool    CommandPool
	pending *containers.RingQueue[*StagingTransfer]

	metrics      *core.UploadMetrics
	fenceTimeout time.Duration
	now          func() time.Time
}

func NewTransferManager(driver Driver, opts ...TransferOption) (*TransferManager, error) {
	tm := &TransferManager{
		driver:       driver,
		pending:      containers.NewGrowableRingQueue[*StagingTransfer](8),
		metrics:      core.NewUploadMetrics(),
		fenceTimeout: core.DefaultConfig().Transfer.FenceTimeout.Duration,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(tm)
	}

	pool, err := driver.CreateCommandPool(true)
	if err != nil {
		return nil, err
	}
	tm.pool = pool
	return tm, nil
}

// BeginUpload creates a mapped staging buffer of size bytes and starts
// recording its command buffer.
func (tm *TransferManager) BeginUpload(size uint64) (*StagingTransfer, error) {
	t := &StagingTransfer{
		ID:      uuid.New(),
		State:   TransferRecording,
		manager: tm,
		size:    size,
	}

	var err error
	t.buffer, err = tm.driver.CreateBuffer(size,
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return nil, err
	}
	if t.data, err = tm.driver.MapBuffer(t.buffer); err != nil {
		tm.release(t)
		return nil, err
	}
	if t.cmd, err = tm.driver.AllocateCommandBuffer(tm.pool); err != nil {
		tm.release(t)
		return nil, err
	}
	if err = tm.driver.BeginCommandBuffer(t.cmd, true); err != nil {
		tm.release(t)
		return nil, err
	}
	if t.fence, err = tm.driver.CreateFence(); err != nil {
		tm.release(t)
		return nil, err
	}

	if err := tm.pending.Enqueue(t); err != nil {
		tm.release(t)
		return nil, err
	}
	tm.metrics.RecordStaged(size, tm.pending.Len())
	core.LogDebug("transfer %s staged %d bytes", t.ID, size)
	return t, nil
}

// release frees whatever the transfer holds. It must only be called once the
// device no longer uses the resources.
func (tm *TransferManager) release(t *StagingTransfer) {
	if t.data != nil {
		tm.driver.UnmapBuffer(t.buffer)
		t.data = nil
	}
	if t.fence != nil {
		tm.driver.DestroyFence(t.fence)
		t.fence = nil
	}
	if t.cmd != nil {
		tm.driver.FreeCommandBuffer(tm.pool, t.cmd)
		t.cmd = nil
	}
	if t.buffer != nil {
		tm.driver.DestroyBuffer(t.buffer)
		t.buffer = nil
	}
}

// discard drops a transfer the queue never received.
func (tm *TransferManager) discard(t *StagingTransfer) {
	n := tm.pending.Len()
	for i := 0; i < n; i++ {
		p, _ := tm.pending.Dequeue()
		if p != t {
			_ = tm.pending.Enqueue(p)
		}
	}
	tm.release(t)
	t.State = TransferAborted
	core.LogWarn("transfer %s aborted before reaching the queue", t.ID)
}

// CollectGarbage polls the fence of every submitted transfer without
// blocking and frees the ones the device has finished. Once nothing is
// pending the command pool is reset. It returns the number of transfers
// reclaimed.
func (tm *TransferManager) CollectGarbage() (int, error) {
	reclaimed := 0
	var pollErr error

	n := tm.pending.Len()
	for i := 0; i < n; i++ {
		t, _ := tm.pending.Dequeue()

		if pollErr == nil && t.State == TransferSubmitted {
			signaled, err := tm.driver.FenceSignaled(t.fence)
			if err != nil {
				pollErr = err
			} else if signaled {
				tm.reclaim(t)
				reclaimed++
				continue
			}
		}
		// Still in use, keep it in submission order.
		_ = tm.pending.Enqueue(t)
	}
	if pollErr != nil {
		return reclaimed, pollErr
	}

	if tm.pending.IsEmpty() {
		if err := tm.driver.ResetCommandPool(tm.pool); err != nil {
			return reclaimed, err
		}
	}
	if reclaimed > 0 {
		core.LogDebug("reclaimed %d transfers, %d pending", reclaimed, tm.pending.Len())
	}
	return reclaimed, nil
}

func (tm *TransferManager) reclaim(t *StagingTransfer) {
	tm.release(t)
	t.State = TransferCompleted
	tm.metrics.RecordReclaimed(tm.now().Sub(t.submittedAt))
}

// Wait blocks until the device finished t or timeout elapsed. A zero
// timeout uses the manager default. Running out of time reports the device
// as lost. Resources are still released by CollectGarbage.
func (tm *TransferManager) Wait(t *StagingTransfer, timeout time.Duration) error {
	switch t.State {
	case TransferCompleted:
		return nil
	case TransferRecording, TransferAborted:
		err := core.NewAssetError(core.ErrDataIntegrity, "transfer wait", "transfer %s was never submitted", t.ID)
		core.LogError("%s", err)
		return err
	}
	if timeout <= 0 {
		timeout = tm.fenceTimeout
	}
	if err := tm.driver.WaitFence(t.fence, timeout); err != nil {
		if !errors.Is(err, core.ErrDeviceLost) {
			return err
		}
		core.LogError("transfer %s: %s", t.ID, err)
		return err
	}
	return nil
}

// Pending is the number of transfers not reclaimed yet.
func (tm *TransferManager) Pending() int {
	return tm.pending.Len()
}

func (tm *TransferManager) Metrics() *core.UploadMetrics {
	return tm.metrics
}

// Destroy waits for the queue to drain, releases every transfer and the
// command pool. The manager cannot be used afterwards.
func (tm *TransferManager) Destroy() error {
	if tm.pool == nil {
		return nil
	}
	err := tm.driver.WaitIdle()
	if err != nil {
		core.LogError("transfer manager: wait idle failed: %s", err)
	}
	for !tm.pending.IsEmpty() {
		t, _ := tm.pending.Dequeue()
		if t.State == TransferSubmitted {
			tm.reclaim(t)
			continue
		}
		tm.release(t)
	}
	tm.driver.DestroyCommandPool(tm.pool)
	tm.pool = nil
	return err
}
