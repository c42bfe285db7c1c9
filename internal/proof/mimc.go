package proof

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/consensys/gnark-crypto/hash"
)

// ErrNoCommitment is returned by a CommitmentSource for unknown subjects.
var ErrNoCommitment = errors.New("proof: no commitment registered")

// CommitmentSource yields the public MiMC commitment registered for a
// subject, hex encoded.
type CommitmentSource interface {
	PublicCommitment(ctx context.Context, subjectID string) (string, error)
}

// CommitmentMap is an in-memory CommitmentSource.
type CommitmentMap map[string]string

// PublicCommitment implements CommitmentSource.
func (m CommitmentMap) PublicCommitment(_ context.Context, subjectID string) (string, error) {
	c, ok := m[subjectID]
	if !ok {
		return "", ErrNoCommitment
	}
	return c, nil
}

// MiMCVerifier checks identity and eligibility openings: the proof bytes
// are the preimage of the subject's MiMC-BN254 commitment.
type MiMCVerifier struct {
	commitments CommitmentSource
}

// NewMiMCVerifier creates a MiMCVerifier.
func NewMiMCVerifier(src CommitmentSource) Verifier {
	return Guard(&MiMCVerifier{commitments: src})
}

// Verify implements Verifier.
func (m *MiMCVerifier) Verify(ctx context.Context, subjectID string, preimage []byte, _ Kind) (Verdict, error) {
	want, err := m.commitments.PublicCommitment(ctx, subjectID)
	if errors.Is(err, ErrNoCommitment) {
		return Invalid, nil
	}
	if err != nil {
		return Invalid, err
	}
	wantBytes, err := hex.DecodeString(strings.TrimPrefix(want, "0x"))
	if err != nil {
		return Invalid, nil
	}
	got := MiMCCommit(preimage)
	return Verdict(subtle.ConstantTimeCompare(got, wantBytes) == 1), nil
}

// MiMCCommit hashes preimage with MiMC over BN254. The preimage is split
// into 31-byte chunks, each left-padded to a full field element so every
// block is canonical.
func MiMCCommit(preimage []byte) []byte {
	h := hash.MIMC_BN254.New("seed")
	const chunk = 31
	for off := 0; off < len(preimage); off += chunk {
		end := min(off+chunk, len(preimage))
		var block [32]byte
		copy(block[32-(end-off):], preimage[off:end])
		h.Write(block[:])
	}
	return h.Sum(nil)
}

// MiMCCommitHex is MiMCCommit hex encoded.
func MiMCCommitHex(preimage []byte) string {
	return hex.EncodeToString(MiMCCommit(preimage))
}
