// File: internal/session/table_test.go
// Author: basalt authors
// License: Apache-2.0

package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basalt-mc/basalt/internal/session"
)

func TestTableClaimUntilFull(t *testing.T) {
	tbl := session.NewTable(2)
	a := tbl.Claim()
	require.NotNil(t, a)
	a.Activate(10, 0x7F000001, 1111, nil)
	b := tbl.Claim()
	require.NotNil(t, b)
	b.Activate(11, 0x7F000001, 2222, nil)

	// Third connection finds no row; the server is full.
	assert.Nil(t, tbl.Claim())
	assert.Equal(t, 2, tbl.Active())
}

func TestTableReleaseRecyclesRow(t *testing.T) {
	tbl := session.NewTable(1)
	s := tbl.Claim()
	require.NotNil(t, s)
	s.Activate(10, 0x7F000001, 1111, nil)
	index, generation := s.Index(), s.Generation()

	tbl.Release(s)
	assert.Equal(t, 0, tbl.Active())
	assert.False(t, s.InUse())

	// The row is reusable, with the generation advanced.
	s2 := tbl.Claim()
	require.NotNil(t, s2)
	assert.Equal(t, index, s2.Index())
	assert.Equal(t, generation+1, s2.Generation())
}

func TestTableGetRejectsStaleGeneration(t *testing.T) {
	tbl := session.NewTable(1)
	s := tbl.Claim()
	s.Activate(10, 0, 0, nil)
	index, generation := s.Index(), s.Generation()

	require.NotNil(t, tbl.Get(index, generation))
	tbl.Release(s)
	assert.Nil(t, tbl.Get(index, generation), "stale generation must not resolve")

	s2 := tbl.Claim()
	s2.Activate(11, 0, 0, nil)
	assert.Nil(t, tbl.Get(index, generation), "old handle must not reach the new occupant")
	require.NotNil(t, tbl.Get(index, s2.Generation()))
}

func TestTableAt(t *testing.T) {
	tbl := session.NewTable(2)
	assert.Nil(t, tbl.At(0), "free row does not resolve")
	assert.Nil(t, tbl.At(-1))
	assert.Nil(t, tbl.At(5))

	s := tbl.Claim()
	s.Activate(10, 0, 0, nil)
	assert.Equal(t, s, tbl.At(s.Index()))
}

func TestTableRangeVisitsLiveRows(t *testing.T) {
	tbl := session.NewTable(4)
	for i := 0; i < 3; i++ {
		s := tbl.Claim()
		s.Activate(int32(10+i), 0, 0, nil)
	}
	seen := 0
	tbl.Range(func(*session.Session) bool {
		seen++
		return true
	})
	assert.Equal(t, 3, seen)
}
