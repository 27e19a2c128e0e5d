package vulkan

import (
	"fmt"
	"testing"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkstage/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, d *fakeDriver, opts ...TransferOption) *TransferManager {
	t.Helper()
	tm, err := NewTransferManager(d, opts...)
	require.NoError(t, err)
	return tm
}

func submitCopy(t *testing.T, tm *TransferManager, d *fakeDriver, size uint64) *StagingTransfer {
	t.Helper()
	tr, err := tm.BeginUpload(size)
	require.NoError(t, err)
	dst, err := d.CreateBuffer(size, 0, 0)
	require.NoError(t, err)
	require.NoError(t, tr.Copy(dst, size,
		vk.PipelineStageFlags(vk.PipelineStageVertexInputBit), vk.AccessFlags(vk.AccessVertexAttributeReadBit)))
	require.NoError(t, tr.Submit())
	return tr
}

func TestBeginUploadStagesMappedBuffer(t *testing.T) {
	d := newFakeDriver()
	tm := newTestManager(t, d)

	tr, err := tm.BeginUpload(64)
	require.NoError(t, err)

	assert.Equal(t, TransferRecording, tr.State)
	assert.Len(t, tr.Bytes(), 64)
	assert.Equal(t, 1, tm.Pending())
	require.Len(t, d.buffers, 1)
	assert.True(t, d.buffers[0].mapped)
	assert.Equal(t, vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit), d.buffers[0].usage)
	assert.True(t, d.commands[0].recording)
	assert.Equal(t, uint64(64), tm.Metrics().BytesStaged)
}

func TestCopyRecordsBarrierToDestinationStage(t *testing.T) {
	d := newFakeDriver()
	tm := newTestManager(t, d)

	tr := submitCopy(t, tm, d, 32)

	cmds := d.commands[0].commands
	require.Len(t, cmds, 2)
	assert.Equal(t, "copy 1+0 -> 4+0 (32)", cmds[0])
	assert.Equal(t, fmt.Sprintf("buffer barrier 4 stage %#x->%#x access %#x->%#x",
		uint32(vk.PipelineStageTransferBit), uint32(vk.PipelineStageVertexInputBit),
		uint32(vk.AccessTransferWriteBit), uint32(vk.AccessVertexAttributeReadBit)), cmds[1])

	assert.Equal(t, TransferSubmitted, tr.State)
	assert.Nil(t, tr.Bytes())
	assert.False(t, d.buffers[0].mapped)
	assert.Equal(t, uint64(1), tm.Metrics().TransfersSubmitted)
}

func TestCopyRejectsOversizedRegion(t *testing.T) {
	d := newFakeDriver()
	tm := newTestManager(t, d)

	tr, err := tm.BeginUpload(16)
	require.NoError(t, err)
	dst, _ := d.CreateBuffer(8, 0, 0)

	err = tr.Copy(dst, 16, 0, 0)
	assert.ErrorIs(t, err, core.ErrDataIntegrity)
	err = tr.CopyRegion(8, dst, 0, 16, 0, 0)
	assert.ErrorIs(t, err, core.ErrDataIntegrity)
}

func TestSubmittedTransferIsNotRecordable(t *testing.T) {
	d := newFakeDriver()
	tm := newTestManager(t, d)

	tr := submitCopy(t, tm, d, 8)
	dst, _ := d.CreateBuffer(8, 0, 0)

	assert.ErrorIs(t, tr.Copy(dst, 8, 0, 0), core.ErrDataIntegrity)
	assert.ErrorIs(t, tr.Submit(), core.ErrDataIntegrity)
	assert.Equal(t, 1, d.count("Submit"))
}

func TestCollectGarbageWaitsForFence(t *testing.T) {
	const polls = 5

	d := newFakeDriver()
	d.fencePolls = polls
	tm := newTestManager(t, d)

	tr := submitCopy(t, tm, d, 128)

	for i := 0; i < polls; i++ {
		n, err := tm.CollectGarbage()
		require.NoError(t, err)
		assert.Zero(t, n, "poll %d", i)
		assert.Equal(t, 1, tm.Pending())
		assert.False(t, d.buffers[0].destroyed)
		assert.False(t, d.fences[0].destroyed)
	}
	assert.Zero(t, d.count("ResetCommandPool"))

	n, err := tm.CollectGarbage()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, tm.Pending())
	assert.Equal(t, TransferCompleted, tr.State)
	assert.True(t, d.buffers[0].destroyed)
	assert.True(t, d.fences[0].destroyed)
	assert.True(t, d.commands[0].freed)
	assert.Equal(t, 1, d.pools[0].resets)
	assert.Zero(t, d.prematureFrees)
	assert.Equal(t, uint64(1), tm.Metrics().TransfersReclaimed)
}

func TestCollectGarbageKeepsRecordingTransfers(t *testing.T) {
	d := newFakeDriver()
	tm := newTestManager(t, d)

	recording, err := tm.BeginUpload(8)
	require.NoError(t, err)
	submitCopy(t, tm, d, 8)

	n, err := tm.CollectGarbage()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, tm.Pending())
	assert.Equal(t, TransferRecording, recording.State)
	assert.Zero(t, d.pools[0].resets)

	require.NoError(t, recording.Submit())
	n, err = tm.CollectGarbage()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, d.pools[0].resets)
}

func TestCollectGarbageReclaimsOutOfOrder(t *testing.T) {
	d := newFakeDriver()
	tm := newTestManager(t, d)

	d.fencePolls = 3
	slow := submitCopy(t, tm, d, 8)
	d.fencePolls = 0
	fast := submitCopy(t, tm, d, 8)

	n, err := tm.CollectGarbage()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, TransferCompleted, fast.State)
	assert.Equal(t, TransferSubmitted, slow.State)
	assert.Zero(t, d.pools[0].resets)

	for slow.State != TransferCompleted {
		_, err := tm.CollectGarbage()
		require.NoError(t, err)
	}
	assert.Equal(t, 1, d.pools[0].resets)
	assert.Zero(t, d.prematureFrees)
}

func TestCollectGarbagePollFailure(t *testing.T) {
	d := newFakeDriver()
	tm := newTestManager(t, d)
	submitCopy(t, tm, d, 8)
	submitCopy(t, tm, d, 8)

	d.failures["FenceSignaled"] = core.NewAssetError(core.ErrDeviceLost, "fence status", "lost")
	n, err := tm.CollectGarbage()
	assert.ErrorIs(t, err, core.ErrDeviceLost)
	assert.Zero(t, n)
	assert.Equal(t, 2, tm.Pending())
	assert.Zero(t, d.count("ResetCommandPool"))
}

func TestCollectGarbageLatencyMetrics(t *testing.T) {
	d := newFakeDriver()
	now := time.Unix(100, 0)
	tm := newTestManager(t, d, WithClock(func() time.Time { return now }))

	submitCopy(t, tm, d, 8)
	now = now.Add(40 * time.Millisecond)
	_, err := tm.CollectGarbage()
	require.NoError(t, err)

	assert.Equal(t, 40*time.Millisecond, tm.Metrics().AvgLatency)
	assert.Zero(t, tm.Metrics().InFlight())
}

func TestWaitTimeoutIsDeviceLost(t *testing.T) {
	d := newFakeDriver()
	d.waitSignals = false
	tm := newTestManager(t, d, WithFenceTimeout(time.Millisecond))

	tr := submitCopy(t, tm, d, 8)
	err := tm.Wait(tr, 0)
	assert.ErrorIs(t, err, core.ErrDeviceLost)
	assert.Equal(t, 1, tm.Pending())
}

func TestWaitThenCollect(t *testing.T) {
	d := newFakeDriver()
	d.fencePolls = 1000
	tm := newTestManager(t, d)

	tr := submitCopy(t, tm, d, 8)
	require.NoError(t, tm.Wait(tr, time.Second))

	n, err := tm.CollectGarbage()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, tm.Wait(tr, time.Second))
}

func TestWaitOnRecordingTransfer(t *testing.T) {
	d := newFakeDriver()
	tm := newTestManager(t, d)

	tr, err := tm.BeginUpload(8)
	require.NoError(t, err)
	assert.ErrorIs(t, tm.Wait(tr, time.Second), core.ErrDataIntegrity)
	assert.Zero(t, d.count("WaitFence"))
}

func TestDestroyWaitsIdleFirst(t *testing.T) {
	d := newFakeDriver()
	d.fencePolls = 1000
	tm := newTestManager(t, d)

	submitCopy(t, tm, d, 8)
	_, err := tm.BeginUpload(8)
	require.NoError(t, err)

	require.NoError(t, tm.Destroy())

	idle := d.indexOf("WaitIdle")
	require.NotEqual(t, -1, idle)
	assert.Less(t, idle, d.indexOf("DestroyFence"))
	assert.Less(t, idle, d.indexOf("DestroyCommandPool"))
	assert.True(t, d.pools[0].destroyed)
	assert.Zero(t, d.prematureFrees)
	assert.Equal(t, 0, tm.Pending())
	for i, b := range d.buffers {
		if i == 0 || i == 2 {
			assert.True(t, b.destroyed, "staging buffer %d", i)
		}
	}

	require.NoError(t, tm.Destroy())
	assert.Equal(t, 1, d.count("DestroyCommandPool"))
}

func TestBeginUploadAllocationFailures(t *testing.T) {
	cases := []struct {
		failing string
		kind    error
	}{
		{"CreateBuffer", core.ErrOutOfDeviceMemory},
		{"MapBuffer", core.ErrOutOfHostMemory},
		{"AllocateCommandBuffer", core.ErrOutOfHostMemory},
		{"CreateFence", core.ErrOutOfDeviceMemory},
	}
	for _, tc := range cases {
		t.Run(tc.failing, func(t *testing.T) {
			d := newFakeDriver()
			tm := newTestManager(t, d)
			d.failures[tc.failing] = core.NewAssetError(tc.kind, tc.failing, "injected")

			tr, err := tm.BeginUpload(32)
			assert.Nil(t, tr)
			assert.ErrorIs(t, err, tc.kind)
			assert.Equal(t, 0, tm.Pending())
			for _, b := range d.buffers {
				assert.True(t, b.destroyed)
				assert.False(t, b.mapped)
			}
			for _, cb := range d.commands {
				assert.True(t, cb.freed)
			}
		})
	}
}

func TestNewTransferManagerPoolFailure(t *testing.T) {
	d := newFakeDriver()
	d.failures["CreateCommandPool"] = core.NewAssetError(core.ErrOutOfHostMemory, "create command pool", "injected")
	_, err := NewTransferManager(d)
	assert.ErrorIs(t, err, core.ErrOutOfHostMemory)
}

func TestSubmitFailureAbortsTransfer(t *testing.T) {
	for _, failing := range []string{"EndCommandBuffer", "Submit"} {
		t.Run(failing, func(t *testing.T) {
			d := newFakeDriver()
			tm := newTestManager(t, d)

			kept := submitCopy(t, tm, d, 16)

			tr, err := tm.BeginUpload(32)
			require.NoError(t, err)
			d.failures[failing] = core.NewAssetError(core.ErrDeviceLost, failing, "injected")

			assert.ErrorIs(t, tr.Submit(), core.ErrDeviceLost)
			assert.Equal(t, TransferAborted, tr.State)
			assert.Equal(t, 1, tm.Pending())
			assert.ErrorIs(t, tm.Wait(tr, time.Second), core.ErrDataIntegrity)

			aborted := d.buffers[2]
			assert.True(t, aborted.destroyed)
			assert.False(t, aborted.mapped)
			assert.True(t, d.commands[1].freed)
			assert.True(t, d.fences[1].destroyed)
			assert.False(t, d.buffers[0].destroyed)

			delete(d.failures, failing)
			n, err := tm.CollectGarbage()
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			assert.Equal(t, TransferCompleted, kept.State)
			assert.Equal(t, 0, tm.Pending())
			assert.Equal(t, 1, d.pools[0].resets)
			assert.Zero(t, d.prematureFrees)
		})
	}
}
