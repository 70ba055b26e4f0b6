// Package merkle builds a binary Merkle tree over a session slice of
// event_hash values and produces inclusion proofs against the resulting
// root (C8).
package merkle

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// Tree is a binary Merkle tree built over an ordered list of leaf hashes.
// Leaves is the input order (the session slice's event_hash values);
// Levels[0] is that same leaf level, Levels[len-1] is the single root.
type Tree struct {
	Leaves []string
	Levels [][]string
	Root   string
}

// BuildTree constructs a Merkle tree whose leaves are the given event_hash
// values, in order. Odd layer width is handled by duplicating the final
// node of that layer (standard Bitcoin-style), so every level halves
// exactly. Internal nodes are SHA3-256(left_bytes || right_bytes), where
// left_bytes/right_bytes are the 32 raw bytes of the child hashes, not
// their hex form.
func BuildTree(leafHashes []string) (*Tree, error) {
	if len(leafHashes) == 0 {
		return nil, fmt.Errorf("merkle: cannot build a tree over zero leaves")
	}
	for i, h := range leafHashes {
		if _, err := decodeLeaf(h); err != nil {
			return nil, fmt.Errorf("merkle: leaf %d: %w", i, err)
		}
	}

	leaves := append([]string(nil), leafHashes...)
	tree := &Tree{Leaves: leaves}
	level := leaves
	tree.Levels = append(tree.Levels, level)

	for len(level) > 1 {
		level = nextLevel(level)
		tree.Levels = append(tree.Levels, level)
	}
	tree.Root = level[0]
	return tree, nil
}

// InclusionProof returns the (hash, side) witness path for the leaf at
// index i, along with the tree's root.
func (t *Tree) InclusionProof(i int) (Proof, error) {
	if i < 0 || i >= len(t.Leaves) {
		return Proof{}, fmt.Errorf("merkle: leaf index %d out of range [0,%d)", i, len(t.Leaves))
	}
	var steps []Step
	idx := i
	for level := 0; level < len(t.Levels)-1; level++ {
		nodes := t.Levels[level]
		width := len(nodes)
		isRight := idx%2 == 1
		var siblingIdx int
		var side Side
		if isRight {
			siblingIdx = idx - 1
			side = SideLeft
		} else {
			siblingIdx = idx + 1
			if siblingIdx >= width {
				siblingIdx = idx // duplicated final node
			}
			side = SideRight
		}
		steps = append(steps, Step{Hash: nodes[siblingIdx], Side: side})
		idx /= 2
	}
	return Proof{
		LeafHash: t.Leaves[i],
		Root:     t.Root,
		Steps:    steps,
	}, nil
}

func nextLevel(level []string) []string {
	width := len(level)
	if width%2 != 0 {
		level = append(level, level[width-1])
		width++
	}
	next := make([]string, width/2)
	for i := 0; i < width; i += 2 {
		next[i/2] = nodeHash(level[i], level[i+1])
	}
	return next
}

func nodeHash(leftHex, rightHex string) string {
	left, _ := decodeLeaf(leftHex)
	right, _ := decodeLeaf(rightHex)
	combined := make([]byte, 0, len(left)+len(right))
	combined = append(combined, left...)
	combined = append(combined, right...)
	sum := sha3.Sum256(combined)
	return hex.EncodeToString(sum[:])
}

func decodeLeaf(h string) ([]byte, error) {
	if len(h) != 64 {
		return nil, fmt.Errorf("hash %q is not 64 hex characters", h)
	}
	b, err := hex.DecodeString(h)
	if err != nil {
		return nil, fmt.Errorf("hash %q is not valid hex: %w", h, err)
	}
	return b, nil
}
