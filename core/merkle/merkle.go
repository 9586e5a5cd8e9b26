// Package merkle adapts the teacher's core/merkle_tree_operations.go into
// an SPV-style inclusion proof helper (build, proof, verify). No other
// package in this module calls it; the chain watchers' backfill does not
// use it.
package merkle

import (
	"bytes"
	"errors"

	"github.com/redbridge-network/partychain/core/types"
)

// Tree holds every level of a binary Merkle tree, leaf level first and root
// last, hashed with the same SHA-3-256 primitive used across the rest of the
// module (types.HashBytes).
type Tree [][]types.Hash

// Build constructs a Tree over leaves. An odd level duplicates its final
// node before pairing, matching the teacher's duplicate-last-leaf rule.
func Build(leaves [][]byte) (Tree, error) {
	if len(leaves) == 0 {
		return nil, errors.New("merkle: no leaves")
	}

	level := make([]types.Hash, len(leaves))
	for i, l := range leaves {
		level[i] = types.HashBytes(l)
	}

	tree := Tree{level}
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]types.Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = types.HashBytes(append(level[i][:], level[i+1][:]...))
		}
		tree = append(tree, next)
		level = next
	}
	return tree, nil
}

// Root returns the tree's single root hash.
func (t Tree) Root() types.Hash {
	top := t[len(t)-1]
	return top[0]
}

// Proof returns the sibling-hash path for the leaf at index, ordered from
// the leaf level upward.
func Proof(leaves [][]byte, index uint32) ([]types.Hash, types.Hash, error) {
	if len(leaves) == 0 {
		return nil, types.Hash{}, errors.New("merkle: no leaves")
	}
	if int(index) >= len(leaves) {
		return nil, types.Hash{}, errors.New("merkle: index out of range")
	}

	tree, err := Build(leaves)
	if err != nil {
		return nil, types.Hash{}, err
	}

	proof := make([]types.Hash, 0, len(tree)-1)
	idx := int(index)
	for i := 0; i < len(tree)-1; i++ {
		level := tree[i]
		if idx%2 == 0 {
			if idx+1 < len(level) {
				proof = append(proof, level[idx+1])
			} else {
				proof = append(proof, level[idx])
			}
		} else {
			proof = append(proof, level[idx-1])
		}
		idx /= 2
	}
	return proof, tree.Root(), nil
}

// Verify reports whether proof reconstructs root for leaf at index.
func Verify(root types.Hash, leaf []byte, proof []types.Hash, index uint32) bool {
	hash := types.HashBytes(leaf)
	for _, p := range proof {
		if index%2 == 0 {
			hash = types.HashBytes(append(hash[:], p[:]...))
		} else {
			hash = types.HashBytes(append(p[:], hash[:]...))
		}
		index /= 2
	}
	return bytes.Equal(hash[:], root[:])
}
