package gifkit

import "image/color"

// maxOctDepth bounds the octree at 8 levels (§4.6): finer subdivision
// than this buys no practical quality for 8-bit color components.
const maxOctDepth = 8

// RGB is a color.RGBA with alpha dropped, used as the quantizer's
// color-table key: the quantizer classifies true color, not
// transparency (transparency is handled separately by the caller,
// §4.7 step 2).
type RGB struct {
	R, G, B uint8
}

func rgbOf(c color.RGBA) RGB {
	return RGB{c.R, c.G, c.B}
}

// octNode is one cube of the color octree. Nodes live in a flat arena
// (*octree.nodes) addressed by index; children reference siblings by
// index rather than pointer. Nodes have no parent field: a node's
// parent is only reachable through the traversal stack.
type octNode struct {
	low, high [3]int
	center    [3]int
	depth     int
	children  [8]int // -1 if absent
	numPixels int
	numExcl   int
	sums      [3]int64
	err       float64
}

// octree implements "Adaptive Spatial Subdivision" color quantization
// (§4.6), ported from gifprime/quantize.py's ColourCube/_classify/
// _reduce/_assign.
type octree struct {
	nodes []octNode
}

func newOctree() *octree {
	root := octNode{
		low:      [3]int{0, 0, 0},
		high:     [3]int{255, 255, 255},
		children: [8]int{-1, -1, -1, -1, -1, -1, -1, -1},
	}
	root.center = [3]int{127, 127, 127}
	return &octree{nodes: []octNode{root}}
}

// childFor returns the index of the child of nodes[idx] that contains
// c, creating it if it doesn't exist yet (lazy octree generation). It
// returns -1 at the depth ceiling, where there is no child.
func (t *octree) childFor(idx int, c [3]int) int {
	n := t.nodes[idx]
	if n.depth == maxOctDepth {
		return -1
	}
	size := (n.high[0] - n.low[0]) / 2
	var mid, lo, hi [3]int
	slot := 0
	for i := 0; i < 3; i++ {
		mid[i] = n.low[i] + size + 1
		if c[i] < mid[i] {
			lo[i] = n.low[i]
		} else {
			lo[i] = mid[i]
			slot |= 1 << uint(i)
		}
		hi[i] = lo[i] + size
	}
	if existing := n.children[slot]; existing != -1 {
		return existing
	}
	child := octNode{
		low:      lo,
		high:     hi,
		depth:    n.depth + 1,
		children: [8]int{-1, -1, -1, -1, -1, -1, -1, -1},
	}
	for i := 0; i < 3; i++ {
		child.center[i] = (lo[i] + hi[i]) / 2
	}
	t.nodes = append(t.nodes, child)
	t.nodes[idx].children[slot] = len(t.nodes) - 1
	return len(t.nodes) - 1
}

func centerDistSq(center, c [3]int) float64 {
	d0 := float64(c[0] - center[0])
	d1 := float64(c[1] - center[1])
	d2 := float64(c[2] - center[2])
	return d0*d0 + d1*d1 + d2*d2
}

// classify walks every pixel down the tree, generating nodes as
// needed, per §4.6 Phase 1.
func (t *octree) classify(pixels []RGB) {
	for _, p := range pixels {
		c := [3]int{int(p.R), int(p.G), int(p.B)}
		idx := 0
		for {
			t.nodes[idx].numPixels++
			t.nodes[idx].err += centerDistSq(t.nodes[idx].center, c)
			child := t.childFor(idx, c)
			if child == -1 {
				t.nodes[idx].numExcl++
				for i := 0; i < 3; i++ {
					t.nodes[idx].sums[i] += int64(c[i])
				}
				break
			}
			idx = child
		}
	}
}

// walkLinked visits every node still reachable from the root (i.e.
// not yet pruned) via depth-first traversal.
func (t *octree) walkLinked(idx int, visit func(int)) {
	visit(idx)
	for _, child := range t.nodes[idx].children {
		if child != -1 {
			t.walkLinked(child, visit)
		}
	}
}

func (t *octree) countColors() int {
	n := 0
	t.walkLinked(0, func(idx int) {
		if t.nodes[idx].numExcl > 0 {
			n++
		}
	})
	return n
}

// prune absorbs nodes[idx]'s child at slot into nodes[idx], after
// recursively pruning that child's own descendants bottom-up first
// (§4.6 Phase 2, §9 "Pruning a child recursively prunes that child's
// descendants bottom-up first").
func (t *octree) prune(idx, slot int) {
	childIdx := t.nodes[idx].children[slot]
	for s := 0; s < 8; s++ {
		if t.nodes[childIdx].children[s] != -1 {
			t.prune(childIdx, s)
		}
	}
	t.nodes[idx].numExcl += t.nodes[childIdx].numExcl
	for i := 0; i < 3; i++ {
		t.nodes[idx].sums[i] += t.nodes[childIdx].sums[i]
	}
	t.nodes[idx].children[slot] = -1
}

// reduce prunes the tree until at most maxColors nodes have
// exclusive pixels, per §4.6 Phase 2.
func (t *octree) reduce(maxColors int) {
	numColors := t.countColors()
	minE := 0.0

	for numColors > maxColors {
		numColors = 0
		nextMinE := 0.0
		haveNext := false
		stack := []int{0}

		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			e := t.nodes[idx].err
			if !haveNext || e < nextMinE {
				nextMinE = e
				haveNext = true
			}

			children := t.nodes[idx].children // array value: stable snapshot
			for s := 0; s < 8; s++ {
				childIdx := children[s]
				if childIdx == -1 {
					continue
				}
				if t.nodes[childIdx].err <= minE {
					t.prune(idx, s)
				} else {
					stack = append(stack, childIdx)
				}
			}

			if t.nodes[idx].numExcl > 0 {
				numColors++
			}
		}

		minE = nextMinE
	}
}

func (t *octree) contains(idx int, c [3]int) bool {
	n := &t.nodes[idx]
	for i := 0; i < 3; i++ {
		if c[i] < n.low[i] || c[i] > n.high[i] {
			return false
		}
	}
	return true
}

// deepestContaining returns the deepest still-linked node containing
// c, without generating new nodes (§4.6 Phase 3).
func (t *octree) deepestContaining(idx int, c [3]int) int {
	for _, child := range t.nodes[idx].children {
		if child != -1 && t.contains(child, c) {
			return t.deepestContaining(child, c)
		}
	}
	return idx
}

// assign builds the color table and color->index map, per §4.6
// Phase 3.
func (t *octree) assign(pixels []RGB) (ColorTable, map[RGB]int) {
	var table ColorTable
	nodeToIndex := make(map[int]int)

	t.walkLinked(0, func(idx int) {
		n := &t.nodes[idx]
		if n.numExcl > 0 {
			mean := color.RGBA{
				R: uint8(n.sums[0] / int64(n.numExcl)),
				G: uint8(n.sums[1] / int64(n.numExcl)),
				B: uint8(n.sums[2] / int64(n.numExcl)),
				A: 255,
			}
			table = append(table, mean)
			nodeToIndex[idx] = len(table) - 1
		}
	})

	colorMap := make(map[RGB]int, len(pixels))
	for _, p := range pixels {
		if _, ok := colorMap[p]; ok {
			continue
		}
		c := [3]int{int(p.R), int(p.G), int(p.B)}
		idx := t.deepestContaining(0, c)
		colorMap[p] = nodeToIndex[idx]
	}

	return table, colorMap
}

// Quantize reduces pixels to a color table of at most maxColors
// entries, along with a map from every unique input color to its
// index in that table (§4.6). Returns QuantizerFailure if reduction
// somehow leaves more representatives than maxColors, which should be
// unreachable and indicates a bug in reduce.
func Quantize(pixels []RGB, maxColors int) (ColorTable, map[RGB]int, error) {
	if maxColors < 1 {
		maxColors = 1
	}
	t := newOctree()
	t.classify(pixels)
	t.reduce(maxColors)
	table, colorMap := t.assign(pixels)
	if len(table) > maxColors {
		return nil, nil, newErr(QuantizerFailure, "reduced to %d colors, want <= %d", len(table), maxColors)
	}
	return table, colorMap, nil
}
