package integrity

import (
	"errors"
	"fmt"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
)

// Result is the outcome of an integrity check.
type Result struct {
	UOWID       string `json:"uow_id"`
	IsValid     bool   `json:"is_valid"`
	StoredHash  string `json:"stored_hash"`
	CurrentHash string `json:"current_hash"`
}

// Drift reports whether the stored and recomputed hashes differ.
func (r Result) Drift() bool { return !r.IsValid }

// DriftError is a security-relevant mismatch between stored and recomputed hashes.
type DriftError struct {
	Result Result
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("integrity drift on %s: stored %s, computed %s",
		e.Result.UOWID, short(e.Result.StoredHash), short(e.Result.CurrentHash))
}

func (e *DriftError) Is(target error) bool { return target == domain.ErrIntegrityDrift }

// Verify recomputes the hash over the current attributes and compares it to the stored one.
func Verify(u *domain.UOW) (Result, error) {
	current, err := Hash(u.Attributes)
	if err != nil {
		return Result{}, err
	}
	return Result{
		UOWID:       u.ID,
		IsValid:     current == u.ContentHash,
		StoredHash:  u.ContentHash,
		CurrentHash: current,
	}, nil
}

// Check is Verify returning a *DriftError on mismatch.
func Check(u *domain.UOW) error {
	res, err := Verify(u)
	if err != nil {
		return err
	}
	if !res.IsValid {
		return &DriftError{Result: res}
	}
	return nil
}

// IsDrift reports whether err carries a drift result.
func IsDrift(err error) (Result, bool) {
	var de *DriftError
	if errors.As(err, &de) {
		return de.Result, true
	}
	return Result{}, false
}

// ChainBreak describes a history entry whose previous hash does not follow its predecessor.
type ChainBreak struct {
	Seq      int64   `json:"seq"`
	Expected *string `json:"expected"`
	Got      *string `json:"got"`
}

// VerifyChain checks that every entry's previous hash equals its predecessor's new hash
// and that the first entry has none.
func VerifyChain(entries []domain.HistoryEntry) []ChainBreak {
	var breaks []ChainBreak
	var prev *string
	for i, e := range entries {
		if i == 0 {
			if e.PreviousStateHash != nil {
				breaks = append(breaks, ChainBreak{Seq: e.Seq, Expected: nil, Got: e.PreviousStateHash})
			}
		} else if e.PreviousStateHash == nil || prev == nil || *e.PreviousStateHash != *prev {
			breaks = append(breaks, ChainBreak{Seq: e.Seq, Expected: prev, Got: e.PreviousStateHash})
		}
		h := e.NewStateHash
		prev = &h
	}
	return breaks
}

func short(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
