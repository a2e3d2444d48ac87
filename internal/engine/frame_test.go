// File: internal/engine/frame_test.go
// Author: basalt authors
// License: Apache-2.0

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basalt-mc/basalt/api"
)

func TestFrameRegistryExhaustion(t *testing.T) {
	r := newFrameRegistry(4096)
	total := len(r.frames)
	require.Greater(t, total, 0)

	for i := 0; i < total; i++ {
		_, err := r.alloc(frameReceive, 0, 0)
		require.NoError(t, err)
	}
	_, err := r.alloc(frameReceive, 0, 0)
	assert.ErrorIs(t, err, api.ErrPoolExhausted)
	assert.Equal(t, total, r.inUse)
}

func TestFrameTraceIsMonotonic(t *testing.T) {
	r := newFrameRegistry(4096)
	var last uint64
	for i := 0; i < 10; i++ {
		f, err := r.alloc(frameSend, -1, 0)
		require.NoError(t, err)
		assert.Greater(t, f.trace, last)
		last = f.trace
		r.release(f)
	}
}

func TestFrameUserDataRoundTrip(t *testing.T) {
	r := newFrameRegistry(4096)
	f, err := r.alloc(frameAccept, -1, 0)
	require.NoError(t, err)

	ud := r.userData(f)
	assert.Equal(t, f, r.lookup(ud))
}

func TestFrameLookupRejectsStaleHandle(t *testing.T) {
	r := newFrameRegistry(4096)
	f, err := r.alloc(frameReceive, 3, 7)
	require.NoError(t, err)
	ud := r.userData(f)
	r.release(f)

	// The handle died with the frame.
	assert.Nil(t, r.lookup(ud))

	// A new occupant of the same cell carries a new salt.
	f2, err := r.alloc(frameSend, -1, 0)
	require.NoError(t, err)
	assert.Equal(t, f.index, f2.index)
	assert.Nil(t, r.lookup(ud))
	assert.Equal(t, f2, r.lookup(r.userData(f2)))
}

func TestFrameLookupRejectsGarbage(t *testing.T) {
	r := newFrameRegistry(4096)
	assert.Nil(t, r.lookup(0xFFFFFFFF))
	assert.Nil(t, r.lookup(uint64(len(r.frames))))
}

func TestFrameAllocInitializesPayload(t *testing.T) {
	r := newFrameRegistry(4096)
	f, err := r.alloc(frameSend, 2, 9)
	require.NoError(t, err)
	f.buf = []byte{1, 2, 3}
	f.bufSize = 3
	f.progress = 3
	r.release(f)

	f2, err := r.alloc(frameReceive, 2, 9)
	require.NoError(t, err)
	assert.Nil(t, f2.buf, "recycled frame carries no stale buffer")
	assert.Zero(t, f2.progress)
	assert.EqualValues(t, 2, f2.session)
	assert.EqualValues(t, 9, f2.gen)
}

func TestFrameRegistrySingleReleaseAccounting(t *testing.T) {
	r := newFrameRegistry(8192)
	frames := make([]*frame, 0, 16)
	for i := 0; i < 16; i++ {
		f, err := r.alloc(frameReceive, int32(i), 0)
		require.NoError(t, err)
		frames = append(frames, f)
	}
	require.Equal(t, 16, r.inUse)
	for _, f := range frames {
		r.release(f)
	}
	assert.Zero(t, r.inUse)

	// Every cell is allocatable again exactly once.
	total := len(r.frames)
	for i := 0; i < total; i++ {
		_, err := r.alloc(frameClose, -1, 0)
		require.NoError(t, err)
	}
	_, err := r.alloc(frameClose, -1, 0)
	assert.ErrorIs(t, err, api.ErrPoolExhausted)
}
