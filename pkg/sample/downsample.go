package sample

// DownsampleWindows reduces windows to at most maxPoints entries by simple
// decimation, for terminal previews.
// Destination-based: reuses dst if it has sufficient capacity, otherwise allocates new.
// The last window is always kept so previews show where the run ended.
func DownsampleWindows(dst []Window, windows []Window, maxPoints int) []Window {
	if maxPoints <= 0 {
		return dst[:0]
	}

	if len(windows) <= maxPoints {
		if cap(dst) >= len(windows) {
			dst = dst[:len(windows)]
			copy(dst, windows)
			return dst
		}
		result := make([]Window, len(windows))
		copy(result, windows)
		return result
	}

	if cap(dst) >= maxPoints {
		dst = dst[:0]
	} else {
		dst = make([]Window, 0, maxPoints)
	}

	if maxPoints == 1 {
		return append(dst, windows[len(windows)-1])
	}

	// Spread maxPoints indices over [0, len-1] inclusive.
	step := float64(len(windows)-1) / float64(maxPoints-1)
	for i := range maxPoints {
		idx := int(float64(i)*step + 0.5)
		dst = append(dst, windows[idx])
	}

	return dst
}
