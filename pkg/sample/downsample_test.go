package sample

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownsample_NoDownsampling(t *testing.T) {
	now := time.Now()
	points := []Point{
		{Timestamp: now, Reference: 20.0},
		{Timestamp: now.Add(time.Second), Reference: 20.1},
		{Timestamp: now.Add(2 * time.Second), Reference: 20.2},
	}

	// Test with nil dst
	result := Downsample(nil, points, 10)
	require.Equal(t, 3, len(result))
	assert.Equal(t, points, result)

	// Test with sufficient capacity dst
	dst := make([]Point, 0, 10)
	result = Downsample(dst, points, 10)
	require.Equal(t, 3, len(result))
	assert.Equal(t, points, result)
	// Should reuse dst
	assert.Equal(t, cap(dst), cap(result))
}

func TestDownsample_WithDownsampling(t *testing.T) {
	now := time.Now()
	points := make([]Point, 100)
	for i := range points {
		points[i] = Point{
			Timestamp: now.Add(time.Duration(i) * time.Second),
			Reference: float64(i) * 0.5,
		}
	}

	dst := make([]Point, 0, 20)
	result := Downsample(dst, points, 10)
	require.Equal(t, 10, len(result))

	// Should always include first point
	assert.Equal(t, points[0], result[0])
	// Last point comes from the last 20% of the range
	assert.GreaterOrEqual(t, result[len(result)-1].Reference, 40.0)
	assert.Equal(t, cap(dst), cap(result))
}

func TestDownsample_DestinationReuse(t *testing.T) {
	now := time.Now()
	first := []Point{{Timestamp: now, Reference: 1}, {Timestamp: now.Add(time.Second), Reference: 2}}
	second := []Point{{Timestamp: now, Reference: 3}, {Timestamp: now.Add(time.Second), Reference: 4}, {Timestamp: now.Add(2 * time.Second), Reference: 5}}

	dst := make([]Point, 0, 10)
	result := Downsample(dst, first, 10)
	require.Len(t, result, 2)

	result = Downsample(result, second, 10)
	require.Len(t, result, 3)
	assert.Equal(t, 3.0, result[0].Reference)
	assert.Equal(t, 5.0, result[2].Reference)
}

func TestDownsample_Empty(t *testing.T) {
	result := Downsample(nil, nil, 10)
	assert.Empty(t, result)
}
