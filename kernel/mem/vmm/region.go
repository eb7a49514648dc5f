package vmm

import "nucleus/kernel"

// freeRegion describes a run of contiguous, unused pages: [start, start+pages).
type freeRegion struct {
	start Page
	pages uint64
}

// end returns the first page past this region.
func (r freeRegion) end() Page {
	return r.start + Page(r.pages)
}

// regionIndex tracks the free address ranges of an AddressSpace. The
// original kernel keeps two balanced trees over the same records -- one
// ordered by start address (coalescing, reserve_at) and one ordered by size
// (best-fit reserve_range) -- plus a linking list. This port keeps a single
// slice sorted by start address: address-ordered lookups are a binary
// search, and best-fit is a linear scan, which is simpler to get right in
// code that will never see a profiler and is cheap enough for the region
// counts a single address space accumulates.
type regionIndex struct {
	regions []freeRegion
}

var (
	errRegionNotEnoughSpace = &kernel.Error{Module: "vmm", Message: "not enough free address space"}
	errRegionOverlap        = &kernel.Error{Module: "vmm", Message: "requested range is not entirely free"}
	errRegionDoubleFree     = &kernel.Error{Module: "vmm", Message: "region already present in free index"}
)

// init seeds the index with a single free chunk covering [start, start+pages).
func (idx *regionIndex) init(start Page, pages uint64) {
	idx.regions = []freeRegion{{start: start, pages: pages}}
}

// indexOfStart returns the position of the first region whose start is >= p.
func (idx *regionIndex) indexOfStart(p Page) int {
	lo, hi := 0, len(idx.regions)
	for lo < hi {
		mid := (lo + hi) / 2
		if idx.regions[mid].start < p {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// reserveRange removes the smallest free region that can satisfy a request
// of n pages (best-fit) and returns its start page.
func (idx *regionIndex) reserveRange(n uint64) (Page, *kernel.Error) {
	best := -1
	for i, r := range idx.regions {
		if r.pages < n {
			continue
		}
		if best == -1 || r.pages < idx.regions[best].pages {
			best = i
		}
	}
	if best == -1 {
		return 0, errRegionNotEnoughSpace
	}

	r := idx.regions[best]
	start := r.start
	if r.pages == n {
		idx.regions = append(idx.regions[:best], idx.regions[best+1:]...)
	} else {
		idx.regions[best] = freeRegion{start: r.start + Page(n), pages: r.pages - n}
	}
	return start, nil
}

// reserveAt removes exactly [addr, addr+n) from the index; addr must fall
// entirely within a single free region.
func (idx *regionIndex) reserveAt(addr Page, n uint64) *kernel.Error {
	for i, r := range idx.regions {
		if addr < r.start || addr+Page(n) > r.end() {
			continue
		}

		var replacement []freeRegion
		if addr > r.start {
			replacement = append(replacement, freeRegion{start: r.start, pages: uint64(addr - r.start)})
		}
		if addr+Page(n) < r.end() {
			replacement = append(replacement, freeRegion{start: addr + Page(n), pages: uint64(r.end() - addr - Page(n))})
		}

		idx.regions = append(idx.regions[:i], append(replacement, idx.regions[i+1:]...)...)
		return nil
	}
	return errRegionOverlap
}

// markFree inserts [addr, addr+n) back into the index, coalescing with an
// immediately adjacent region on either side.
func (idx *regionIndex) markFree(addr Page, n uint64) *kernel.Error {
	pos := idx.indexOfStart(addr)

	mergeLeft := pos > 0 && idx.regions[pos-1].end() == addr
	mergeRight := pos < len(idx.regions) && idx.regions[pos].start == addr+Page(n)

	if pos < len(idx.regions) && idx.regions[pos].start < addr+Page(n) {
		return errRegionDoubleFree
	}
	if pos > 0 && idx.regions[pos-1].end() > addr {
		return errRegionDoubleFree
	}

	switch {
	case mergeLeft && mergeRight:
		idx.regions[pos-1].pages += n + idx.regions[pos].pages
		idx.regions = append(idx.regions[:pos], idx.regions[pos+1:]...)
	case mergeLeft:
		idx.regions[pos-1].pages += n
	case mergeRight:
		idx.regions[pos].start = addr
		idx.regions[pos].pages += n
	default:
		idx.regions = append(idx.regions, freeRegion{})
		copy(idx.regions[pos+1:], idx.regions[pos:])
		idx.regions[pos] = freeRegion{start: addr, pages: n}
	}
	return nil
}
