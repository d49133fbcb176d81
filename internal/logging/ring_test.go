package logging

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, LevelError, Classify("Error: connection refused"))
	assert.Equal(t, LevelError, Classify("ffmpeg FATAL exit"))
	assert.Equal(t, LevelWarning, Classify("Warning: deprecated option"))
	assert.Equal(t, LevelInfo, Classify("frame=120 fps=30"))
}

func TestStore_PerEntityRingBounded(t *testing.T) {
	s := NewStore()
	for i := 0; i < perEntityCapacity+50; i++ {
		s.Push("cam-1", LevelInfo, fmt.Sprintf("line %d", i))
	}
	assert.Len(t, s.Entity("cam-1"), perEntityCapacity)
}

func TestStore_DeviceWideRingBounded(t *testing.T) {
	s := NewStore()
	for i := 0; i < deviceWideCapacity+50; i++ {
		s.Push("cam-1", LevelInfo, fmt.Sprintf("line %d", i))
	}
	assert.Len(t, s.DeviceWide(), deviceWideCapacity)
}

func TestStore_EvictsLeastRecentlyActiveEntity(t *testing.T) {
	s := NewStore()
	for i := 0; i < maxTrackedEntities; i++ {
		s.Push(fmt.Sprintf("cam-%d", i), LevelInfo, "hello")
	}
	require.NotNil(t, s.Entity("cam-0"))

	s.Push("cam-overflow", LevelInfo, "hello")

	assert.Nil(t, s.Entity("cam-0"), "the least-recently-active entity should have been evicted")
	assert.NotNil(t, s.Entity("cam-overflow"))
}

func TestStore_SubscriberDropsOldestOnOverflow(t *testing.T) {
	s := NewStore()
	ch, cancel := s.Subscribe()
	defer cancel()

	for i := 0; i < subscriberCapacity+10; i++ {
		s.Push("cam-1", LevelInfo, fmt.Sprintf("line %d", i))
	}

	assert.Len(t, ch, subscriberCapacity, "a slow subscriber's channel should stay at capacity, not block producers")
}
