// File: internal/memory/ring_test.go
// Author: basalt authors
// License: Apache-2.0

package memory_test

import (
	"math/rand"
	"testing"

	"github.com/smallnest/ringbuffer"
	"github.com/stretchr/testify/require"

	"github.com/basalt-mc/basalt/internal/memory"
)

func TestRingAliasing(t *testing.T) {
	r, err := memory.NewRing(4096, 1)
	require.NoError(t, err)
	defer r.Close()

	size := r.Size()
	span := r.Span()
	require.Len(t, span, size*2)

	for i := 0; i < 16; i++ {
		span[i] = byte(i + 1)
	}
	// The second view aliases the same pages.
	require.Equal(t, span[:16], span[size:size+16])

	// And writes through the high view land in the low one.
	span[size+20] = 0xAA
	require.EqualValues(t, 0xAA, span[20])
}

func TestRingWrapIsContiguous(t *testing.T) {
	r, err := memory.NewRing(4096, 1)
	require.NoError(t, err)
	defer r.Close()

	size := r.Size()
	pos := size - 5
	window := r.At(pos, 10)
	for i := range window {
		window[i] = byte(0xC0 + i)
	}
	span := r.Span()
	require.Equal(t, window[:5], span[pos:pos+5])
	require.Equal(t, window[5:], span[:5])
}

func TestRingRejectsBadSizes(t *testing.T) {
	_, err := memory.NewRing(0, 1)
	require.Error(t, err)
	_, err = memory.NewRing(4096, 0)
	require.Error(t, err)
}

// TestRingDifferential runs the cursor view against a conventional ring
// buffer with the same capacity and checks the byte streams agree after
// thousands of random writes and reads crossing the wrap point.
func TestRingDifferential(t *testing.T) {
	b, err := memory.NewRWBuffer(4096)
	require.NoError(t, err)
	defer b.Close()

	oracle := ringbuffer.New(b.Ring().Size())
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 5000; i++ {
		if rng.Intn(2) == 0 {
			max := oracle.Free()
			if b.Cap() < max {
				max = b.Cap()
			}
			if max == 0 {
				continue
			}
			chunk := make([]byte, 1+rng.Intn(max))
			rng.Read(chunk)
			n, err := oracle.Write(chunk)
			require.NoError(t, err)
			require.Equal(t, len(chunk), n)
			copy(b.WriteSlice(), chunk)
			b.AdvanceWrite(len(chunk))
		} else {
			if oracle.Length() == 0 {
				continue
			}
			n := 1 + rng.Intn(oracle.Length())
			want := make([]byte, n)
			_, err := oracle.Read(want)
			require.NoError(t, err)
			got := append([]byte(nil), b.ReadSlice()[:n]...)
			b.AdvanceRead(n)
			require.Equal(t, want, got, "streams diverged at op %d", i)
		}
		require.Equal(t, oracle.Length(), b.Len())
	}
}
