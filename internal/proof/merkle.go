package proof

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"slices"
	"strings"
)

const (
	leafDomain = "pnw:merkle:leaf:v1\x00"
	nodeDomain = "pnw:merkle:node:v1\x00"
)

// InclusionProof is the wire form of a Merkle inclusion proof.
type InclusionProof struct {
	LeafHash   string      `json:"leaf_hash"`
	MerkleRoot string      `json:"merkle_root"`
	ProofPath  []ProofStep `json:"proof_path"`
}

// ProofStep is one sibling on the path from leaf to root.
type ProofStep struct {
	Side        string `json:"side"` // "L" or "R": where the sibling sits
	SiblingHash string `json:"sibling_hash"`
}

// TrustedRoots reports whether a Merkle root has been published.
type TrustedRoots interface {
	Trusted(ctx context.Context, root string) (bool, error)
}

// StaticRoots is a fixed set of trusted roots.
type StaticRoots []string

// Trusted implements TrustedRoots.
func (s StaticRoots) Trusted(_ context.Context, root string) (bool, error) {
	return slices.ContainsFunc(s, func(r string) bool { return strings.EqualFold(r, root) }), nil
}

// AnyRoots trusts a root if any source does.
func AnyRoots(sources ...TrustedRoots) TrustedRoots {
	return anyRoots(sources)
}

type anyRoots []TrustedRoots

func (a anyRoots) Trusted(ctx context.Context, root string) (bool, error) {
	for _, s := range a {
		ok, err := s.Trusted(ctx, root)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// MerkleVerifier checks JSON inclusion proofs against trusted roots.
type MerkleVerifier struct {
	roots TrustedRoots
}

// NewMerkleVerifier creates a MerkleVerifier.
func NewMerkleVerifier(roots TrustedRoots) Verifier {
	return Guard(&MerkleVerifier{roots: roots})
}

// Verify implements Verifier.
func (m *MerkleVerifier) Verify(ctx context.Context, subjectID string, raw []byte, _ Kind) (Verdict, error) {
	var p InclusionProof
	if err := json.Unmarshal(raw, &p); err != nil {
		return Invalid, nil
	}
	if !strings.EqualFold(p.LeafHash, LeafHash(subjectID)) {
		return Invalid, nil
	}
	if !VerifyInclusion(p) {
		return Invalid, nil
	}
	ok, err := m.roots.Trusted(ctx, p.MerkleRoot)
	if err != nil {
		return Invalid, err
	}
	return Verdict(ok), nil
}

// VerifyInclusion recomputes the root from the leaf and path.
func VerifyInclusion(p InclusionProof) bool {
	if p.MerkleRoot == "" {
		return false
	}
	current := p.LeafHash
	for _, step := range p.ProofPath {
		switch step.Side {
		case "L":
			current = nodeHash(step.SiblingHash, current)
		case "R":
			current = nodeHash(current, step.SiblingHash)
		default:
			return false
		}
	}
	return strings.EqualFold(current, p.MerkleRoot)
}

// LeafHash is the domain-separated hash of a subject.
func LeafHash(subject string) string {
	return sha256Hex(append([]byte(leafDomain), subject...))
}

func nodeHash(left, right string) string {
	var buf bytes.Buffer
	buf.WriteString(nodeDomain)
	buf.Write(hexToBytes(left))
	buf.Write(hexToBytes(right))
	return sha256Hex(buf.Bytes())
}

// Tree is a Merkle tree over subjects, odd levels duplicating their last node.
type Tree struct {
	Root   string
	levels [][]string
	index  map[string]int
}

// BuildTree builds a tree over subjects in the given order.
func BuildTree(subjects []string) (*Tree, error) {
	if len(subjects) == 0 {
		return nil, errors.New("merkle: no leaves")
	}
	t := &Tree{index: make(map[string]int, len(subjects))}
	level := make([]string, len(subjects))
	for i, s := range subjects {
		level[i] = LeafHash(s)
		if _, dup := t.index[s]; !dup {
			t.index[s] = i
		}
	}
	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		t.levels = append(t.levels, level)
		next := make([]string, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = nodeHash(level[i], level[i+1])
		}
		level = next
	}
	t.levels = append(t.levels, level)
	t.Root = level[0]
	return t, nil
}

// Prove returns the inclusion proof for subject.
func (t *Tree) Prove(subject string) (InclusionProof, bool) {
	idx, ok := t.index[subject]
	if !ok {
		return InclusionProof{}, false
	}
	p := InclusionProof{LeafHash: t.levels[0][idx], MerkleRoot: t.Root}
	for _, level := range t.levels[:len(t.levels)-1] {
		if idx%2 == 0 {
			p.ProofPath = append(p.ProofPath, ProofStep{Side: "R", SiblingHash: level[idx+1]})
		} else {
			p.ProofPath = append(p.ProofPath, ProofStep{Side: "L", SiblingHash: level[idx-1]})
		}
		idx /= 2
	}
	return p, true
}

// ProveJSON is Prove encoded for Verify.
func (t *Tree) ProveJSON(subject string) ([]byte, error) {
	p, ok := t.Prove(subject)
	if !ok {
		return nil, errors.New("merkle: subject not in tree")
	}
	return json.Marshal(p)
}

// ApprovalSetSubject is the canonical subject for a quorum approval set:
// the requester followed by the sorted approver ids.
func ApprovalSetSubject(workerID string, approvers []string) string {
	sorted := slices.Clone(approvers)
	slices.Sort(sorted)
	return "quorum:" + workerID + ":" + strings.Join(sorted, ",")
}

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func hexToBytes(s string) []byte {
	b, _ := hex.DecodeString(s)
	return b
}
