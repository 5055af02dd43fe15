package kinds

const (
	length   = 64
	idLength = 8
	depthMax = length / idLength
	idMask   = (1 << idLength) - 1
)

// Bases returns the base ids packed above the leading id of t.
func Bases(t uint64) [depthMax]uint64 {
	var bases [depthMax]uint64
	for i := 1; i < depthMax; i++ {
		bases[i-1] = (t >> (idLength * i)) & idMask
	}
	return bases
}

// Kind packs id together with every id already packed into bases, so that
// IsKind(Kind(id, base), base) holds for the whole ancestry of base.
func Kind(id uint64, bases ...uint64) uint64 {
	id = id & idMask
	var seen [depthMax]uint64
	n := 0
	for _, base := range bases {
		for j := 0; j < depthMax; j++ {
			baseID := (base >> (idLength * j)) & idMask
			if baseID == 0 {
				break
			}
			dup := false
			for _, s := range seen[:n] {
				if s == baseID {
					dup = true
					break
				}
			}
			if dup || n == depthMax-1 {
				continue
			}
			seen[n] = baseID
			n++
			id |= baseID << (idLength * n)
		}
	}
	return id
}

// IsKind reports whether kind is, or derives from, any of bases.
func IsKind(kind uint64, bases ...uint64) bool {
	for _, base := range bases {
		baseID := base & idMask
		if kind == baseID {
			return true
		}
		for i := 0; i < depthMax; i++ {
			if (kind>>(idLength*i))&idMask == baseID {
				return true
			}
		}
	}
	return false
}

var (
	Null = Kind(0)

	// state table classification
	State     = Kind(1)
	Root      = Kind(2, State)
	Composite = Kind(3, State)
	Leaf      = Kind(4, State)

	// bus observers
	Observer   = Kind(5)
	Listener   = Kind(6, Observer)
	Subscriber = Kind(7, Observer)
)
