// Package shuffle derives reproducible orderings and display codes from seed
// strings. The same seed always produces the same result.
package shuffle

const (
	lcgMul = 9301
	lcgInc = 49297
	lcgMod = 233280
)

// Alphabet is the 32-symbol set StableID draws from. Ambiguous glyphs
// (I, O, 0, 1) are left out.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Hash is the 32-bit rolling string hash h = h*31 + c with signed wraparound.
// It iterates UTF-16 code units so codes match those produced by browsers for
// the same keys.
func Hash(s string) int32 {
	var h int32
	for _, c := range utf16Units(s) {
		h = h*31 + int32(c)
	}
	return h
}

// Shuffle returns a permutation of items seeded by seed. The input slice is
// not modified.
func Shuffle[T any](seed string, items []T) []T {
	out := make([]T, len(items))
	copy(out, items)

	state := int64(Hash(seed))
	for i := len(out) - 1; i > 0; i-- {
		state = next(state)
		j := int(state * int64(i+1) / lcgMod)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// next advances the LCG. The modulo is floored so a negative seed hash never
// yields a negative state (and so never a negative swap index).
func next(state int64) int64 {
	s := (state*lcgMul + lcgInc) % lcgMod
	if s < 0 {
		s += lcgMod
	}
	return s
}

// StableID maps key to a short obfuscated label of the form "ID-XXXXXX".
// Distinct keys may collide; callers only rely on stability.
func StableID(key string) string {
	return "ID-" + Code(key)
}

// Code returns the six-symbol body of StableID.
func Code(key string) string {
	h := int64(Hash(key))
	if h < 0 {
		h = -h
	}
	abs := uint32(h)
	var b [6]byte
	for i := range b {
		b[i] = Alphabet[(abs>>uint(i))%uint32(len(Alphabet))]
	}
	return string(b[:])
}

// OrderKey is the secondary sort key used to order variants by their code.
func OrderKey(key string) byte {
	return Code(key)[0]
}

func utf16Units(s string) []uint16 {
	units := make([]uint16, 0, len(s))
	for _, r := range s {
		switch {
		case r < 0x10000:
			units = append(units, uint16(r))
		default:
			r -= 0x10000
			units = append(units, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
		}
	}
	return units
}
