package blend

// mulDiv255 returns a*b/255 rounded to nearest, using Alvy Ray Smith's
// shift formula instead of a division.
func mulDiv255(a, b byte) byte {
	t := uint16(a)*uint16(b) + 128
	return byte((t + t>>8) >> 8)
}

// unmultiply returns c*255/a clamped to 255; 0 when a is 0.
func unmultiply(c, a byte) byte {
	if a == 0 {
		return 0
	}
	return byte(min(255, (uint16(c)*255+uint16(a)/2)/uint16(a)))
}

func addClamp(a, b byte) byte {
	return byte(min(255, uint16(a)+uint16(b)))
}
