package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/PNWBNW/Proven-National-Worker/internal/model"
)

// GenesisHash is the hash of the genesis entry; the chain anchors on it.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Record is what callers append.
type Record struct {
	SubjectID  string
	Action     string // "decision" or an event type
	Actor      string
	Outcome    model.Outcome
	Reason     string
	Code       string
	Target     string
	InputsHash string
}

// Entry is a single chained audit record.
type Entry struct {
	Index      int           `json:"index"`
	Timestamp  time.Time     `json:"timestamp"`
	SubjectID  string        `json:"subject_id"`
	Action     string        `json:"action"`
	Actor      string        `json:"actor"`
	Outcome    model.Outcome `json:"outcome,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Code       string        `json:"code,omitempty"`
	Target     string        `json:"target,omitempty"`
	InputsHash string        `json:"inputs_hash"`
	PrevHash   string        `json:"prev_hash"`
	Hash       string        `json:"hash"`
}

// Decision returns the DecisionRecord view of a decision entry.
func (e *Entry) Decision() model.DecisionRecord {
	return model.DecisionRecord{
		SubjectID:  e.SubjectID,
		InputsHash: e.InputsHash,
		Outcome:    e.Outcome,
		Reason:     e.Reason,
		Code:       e.Code,
		Target:     e.Target,
		DecidedAt:  e.Timestamp,
	}
}

func newEntry(index int, ts time.Time, rec Record, prevHash string) *Entry {
	e := &Entry{
		Index:      index,
		Timestamp:  ts,
		SubjectID:  rec.SubjectID,
		Action:     rec.Action,
		Actor:      rec.Actor,
		Outcome:    rec.Outcome,
		Reason:     rec.Reason,
		Code:       rec.Code,
		Target:     rec.Target,
		InputsHash: rec.InputsHash,
		PrevHash:   prevHash,
	}
	if e.Actor == "" {
		e.Actor = SystemActor
	}
	e.Hash = hashEntry(e)
	return e
}

func genesis(ts time.Time) *Entry {
	return &Entry{
		Index:      0,
		Timestamp:  ts,
		Action:     ActionGenesis,
		Actor:      SystemActor,
		InputsHash: GenesisHash,
		PrevHash:   GenesisHash,
		Hash:       GenesisHash,
	}
}

// hashEntry must never be called on the genesis entry.
func hashEntry(e *Entry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s|%s|%s|%s|%s|%s|%s|%s",
		e.Index, e.Timestamp.Format(time.RFC3339Nano),
		e.SubjectID, e.Action, e.Actor, e.Outcome, e.Reason,
		e.Code, e.Target, e.InputsHash, e.PrevHash,
	)
	return hex.EncodeToString(h.Sum(nil))
}

// verifyChain checks that curr follows prev.
func verifyChain(prev, curr *Entry) error {
	if prev == nil {
		if curr.Hash != GenesisHash {
			return fmt.Errorf("genesis entry has wrong hash: got %q", curr.Hash)
		}
		return nil
	}
	if curr.PrevHash != prev.Hash {
		return fmt.Errorf("hash chain broken at index %d", curr.Index)
	}
	if curr.Hash != hashEntry(curr) {
		return fmt.Errorf("entry %d has invalid hash", curr.Index)
	}
	return nil
}
