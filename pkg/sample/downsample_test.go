package sample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func windowsN(n int) []Window {
	windows := make([]Window, n)
	for i := range windows {
		windows[i] = Window{Index: i, Temperature: float64(i)}
	}
	return windows
}

func TestDownsampleWindows_NoDownsampling(t *testing.T) {
	windows := windowsN(3)

	// Test with nil dst
	result := DownsampleWindows(nil, windows, 10)
	require.Equal(t, 3, len(result))
	assert.Equal(t, windows, result)

	// Test with sufficient capacity dst
	dst := make([]Window, 0, 10)
	result = DownsampleWindows(dst, windows, 10)
	require.Equal(t, 3, len(result))
	assert.Equal(t, windows, result)
	// Should reuse dst
	assert.Equal(t, cap(dst), cap(result))
}

func TestDownsampleWindows_WithDownsampling(t *testing.T) {
	windows := windowsN(100)

	dst := make([]Window, 0, 20)
	result := DownsampleWindows(dst, windows, 10)
	require.Equal(t, 10, len(result))
	assert.Equal(t, cap(dst), cap(result))

	assert.Equal(t, 0, result[0].Index)
	assert.Equal(t, 99, result[len(result)-1].Index)
	for i := 1; i < len(result); i++ {
		assert.Greater(t, result[i].Index, result[i-1].Index)
	}
}

func TestDownsampleWindows_SmallDst(t *testing.T) {
	windows := windowsN(50)
	dst := make([]Window, 0, 2)

	result := DownsampleWindows(dst, windows, 5)
	require.Equal(t, 5, len(result))
	assert.GreaterOrEqual(t, cap(result), 5)
}

func TestDownsampleWindows_SinglePoint(t *testing.T) {
	result := DownsampleWindows(nil, windowsN(10), 1)
	require.Len(t, result, 1)
	assert.Equal(t, 9, result[0].Index)
}

func TestDownsampleWindows_ZeroPoints(t *testing.T) {
	assert.Empty(t, DownsampleWindows(nil, windowsN(10), 0))
}

func TestDownsampleWindows_Empty(t *testing.T) {
	result := DownsampleWindows(nil, nil, 5)
	assert.Empty(t, result)
}
