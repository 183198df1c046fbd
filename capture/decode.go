package capture

// DecodeWordScan returns the number of one bits that precede the first zero
// in a channel A window, or MaxSample if the window holds no zero.
//
// Channel A is captured a byte at a time, most significant bit first, and
// the bytes land in ring memory in ascending address order. The scan
// follows that order: bytes low to high within each word, bits high to low
// within each byte.
func DecodeWordScan(window [WindowWords]uint32) uint8 {
	n := 0
	for _, w := range window {
		if w == 0xffffffff {
			n += WordBits
			continue
		}
		for b := uint(0); b < 4; b++ {
			octet := uint8(w >> (8 * b))
			if octet == 0xff {
				n += 8
				continue
			}
			for bit := 7; bit >= 0; bit-- {
				if octet&(1<<uint(bit)) == 0 {
					return uint8(n)
				}
				n++
			}
		}
	}
	return MaxSample
}

// DecodeMaskedRotate counts the one bits of channel B that precede the first
// zero, starting at bit mask of ring word word. Channel B is captured most
// significant bit first, so the mask walks right and wraps to bit 31 of the
// next word, and the word index wraps at the end of the ring. At most
// MaxSample bits are examined.
func DecodeMaskedRotate(ring Ring, word int, mask uint32) uint8 {
	if mask == 0 {
		mask = 1 << 31
	}
	word = ring.Index(word)
	w := ring.words[word]
	for k := 0; k < MaxSample; k++ {
		if w&mask == 0 {
			return uint8(k)
		}
		mask >>= 1
		if mask == 0 {
			mask = 1 << 31
			word++
			if word == len(ring.words) {
				word = 0
			}
			w = ring.words[word]
		}
	}
	return MaxSample
}

// leadingBit returns the highest set bit of w as a single-bit mask.
func leadingBit(w uint32) uint32 {
	for m := uint32(1 << 31); m != 0; m >>= 1 {
		if w&m != 0 {
			return m
		}
	}
	return 0
}
