package capture

// Ring is a view of one channel's circular buffer. All indexing is modulo
// the ring length, so callers never do their own wraparound arithmetic.
type Ring struct {
	words []uint32
}

// NewRing wraps a slice of DMA-written words.
func NewRing(words []uint32) Ring {
	return Ring{words: words}
}

// Len returns the ring length in words.
func (r Ring) Len() int {
	return len(r.words)
}

// Index reduces any (possibly negative) word index into [0, Len()).
func (r Ring) Index(i int) int {
	n := len(r.words)
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// At returns the word at ring index i.
func (r Ring) At(i int) uint32 {
	return r.words[r.Index(i)]
}

// Set stores a word at ring index i.
func (r Ring) Set(i int, v uint32) {
	r.words[r.Index(i)] = v
}

// Window copies the decode window that starts at ring index i. The copy is
// contiguous even when the window straddles the end of the ring.
func (r Ring) Window(i int) [WindowWords]uint32 {
	var w [WindowWords]uint32
	start := r.Index(i)
	if start+WindowWords <= len(r.words) {
		copy(w[:], r.words[start:start+WindowWords])
		return w
	}
	for k := range w {
		w[k] = r.At(start + k)
	}
	return w
}

// Zero clears the whole ring.
func (r Ring) Zero() {
	for i := range r.words {
		r.words[i] = 0
	}
}

// FirstNonZero scans forward from index 0 for at most limit words and
// returns the index of the first nonzero word. ok is false if the scan ran
// out of words.
func (r Ring) FirstNonZero(limit int) (idx int, ok bool) {
	if limit > len(r.words) {
		limit = len(r.words)
	}
	for i := 0; i < limit; i++ {
		if r.words[i] != 0 {
			return i, true
		}
	}
	return limit, false
}

// Words exposes the backing slice.
func (r Ring) Words() []uint32 {
	return r.words
}
