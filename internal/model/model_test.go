package model

import (
	"testing"

	"github.com/certen/independant-validator/internal/apk"
)

func TestBlockStateOrdering(t *testing.T) {
	cases := []struct {
		state                            BlockState
		atLeastAssigned, atLeastProposed, atLeastVoted bool
		isAssigned, isProposed, isDiscussing, isFinalized bool
	}{
		{BlockStateNone, false, false, false, false, false, false, false},
		{BlockStateAssigned, true, false, false, true, false, false, false},
		{BlockStateProposed, true, true, false, false, true, false, false},
		{BlockStateDiscussing, true, true, false, false, false, true, false},
		{BlockStateVoted, true, true, true, false, false, false, false},
		{BlockStateFinalized, true, true, true, false, false, false, true},
	}
	for _, c := range cases {
		if got := c.state.AtLeastAssigned(); got != c.atLeastAssigned {
			t.Errorf("state %d: AtLeastAssigned() = %v, want %v", c.state, got, c.atLeastAssigned)
		}
		if got := c.state.AtLeastProposed(); got != c.atLeastProposed {
			t.Errorf("state %d: AtLeastProposed() = %v, want %v", c.state, got, c.atLeastProposed)
		}
		if got := c.state.AtLeastVoted(); got != c.atLeastVoted {
			t.Errorf("state %d: AtLeastVoted() = %v, want %v", c.state, got, c.atLeastVoted)
		}
		if got := c.state.IsAssigned(); got != c.isAssigned {
			t.Errorf("state %d: IsAssigned() = %v, want %v", c.state, got, c.isAssigned)
		}
		if got := c.state.IsProposed(); got != c.isProposed {
			t.Errorf("state %d: IsProposed() = %v, want %v", c.state, got, c.isProposed)
		}
		if got := c.state.IsDiscussing(); got != c.isDiscussing {
			t.Errorf("state %d: IsDiscussing() = %v, want %v", c.state, got, c.isDiscussing)
		}
		if got := c.state.IsFinalized(); got != c.isFinalized {
			t.Errorf("state %d: IsFinalized() = %v, want %v", c.state, got, c.isFinalized)
		}
	}
}

func TestBlockStateForProposal(t *testing.T) {
	if got := BlockStateForProposal(true); got != BlockStateDiscussing {
		t.Errorf("BlockStateForProposal(true) = %v, want BlockStateDiscussing", got)
	}
	if got := BlockStateForProposal(false); got != BlockStateProposed {
		t.Errorf("BlockStateForProposal(false) = %v, want BlockStateProposed", got)
	}
}

func TestUnavailableResult(t *testing.T) {
	r := Unavailable(42)
	if r.RequestID != 42 {
		t.Errorf("RequestID = %d, want 42", r.RequestID)
	}
	if r.Status != apk.StatusUnavailable {
		t.Errorf("Status = %v, want StatusUnavailable", r.Status)
	}
	if r.FileHashAlgorithm != FileHashAlgoNone {
		t.Errorf("FileHashAlgorithm = %v, want FileHashAlgoNone", r.FileHashAlgorithm)
	}
}

func TestFileHashAlgoCode(t *testing.T) {
	cases := map[FileHashAlgo]string{
		FileHashAlgoNone:   "none",
		FileHashAlgoBlake3: "blake3",
		FileHashAlgoSHA256: "sha256",
	}
	for algo, want := range cases {
		if got := algo.Code(); got != want {
			t.Errorf("Code(%d) = %q, want %q", algo, got, want)
		}
	}
}

func TestValidationBlockFromToRequestID(t *testing.T) {
	empty := &ValidationBlock{}
	if _, ok := empty.FromRequestID(); ok {
		t.Error("expected FromRequestID to report false for an empty block")
	}
	if _, ok := empty.ToRequestID(); ok {
		t.Error("expected ToRequestID to report false for an empty block")
	}

	b := &ValidationBlock{Requests: []ValidationResult{
		{RequestID: 10},
		{RequestID: 11},
		{RequestID: 12},
	}}
	from, ok := b.FromRequestID()
	if !ok || from != 10 {
		t.Errorf("FromRequestID() = (%d, %v), want (10, true)", from, ok)
	}
	to, ok := b.ToRequestID()
	if !ok || to != 13 {
		t.Errorf("ToRequestID() = (%d, %v), want (13, true)", to, ok)
	}
}

func TestLastStateCanAssignValidator(t *testing.T) {
	s := &LastState{AssignedValidator: ""}
	if !s.CanAssignValidator() {
		t.Error("expected an empty AssignedValidator to be assignable")
	}
	s.AssignedValidator = "0xabc"
	if s.CanAssignValidator() {
		t.Error("expected a non-empty AssignedValidator to not be assignable")
	}
}

func TestLastStateShouldCreateProposal(t *testing.T) {
	s := &LastState{AssignedBlockID: 5, NextProposalBlockID: 5}
	if !s.ShouldCreateProposal(5) {
		t.Error("expected ShouldCreateProposal(5) to be true when both ids match 5")
	}
	if s.ShouldCreateProposal(6) {
		t.Error("expected ShouldCreateProposal(6) to be false when the assigned block is 5")
	}

	s.NextProposalBlockID = 4
	if s.ShouldCreateProposal(5) {
		t.Error("expected ShouldCreateProposal(5) to be false once another block is already next to propose")
	}
}

func TestLastStateIsMyBlock(t *testing.T) {
	s := &LastState{AssignedValidator: "0xme", AssignedBlockID: 9}
	if !s.IsMyBlock(9, "0xme") {
		t.Error("expected IsMyBlock(9, \"0xme\") to be true")
	}
	if s.IsMyBlock(9, "0xother") {
		t.Error("expected IsMyBlock to be false for a different validator")
	}
	if s.IsMyBlock(10, "0xme") {
		t.Error("expected IsMyBlock to be false for a different block id")
	}
}

func TestLastStateIsMyNextFinalizationBlock(t *testing.T) {
	s := &LastState{AssignedValidator: "0xme", AssignedBlockID: 9, NextFinalBlockID: 9}
	if !s.IsMyNextFinalizationBlock(9, "0xme") {
		t.Error("expected block 9 to be my next finalization block")
	}
	s.NextFinalBlockID = 8
	if s.IsMyNextFinalizationBlock(9, "0xme") {
		t.Error("expected IsMyNextFinalizationBlock to be false when NextFinalBlockID disagrees")
	}
}

func TestLastStateCanUnassign(t *testing.T) {
	s := &LastState{AssignedBlockID: 3}
	if !s.CanUnassign(3) {
		t.Error("expected CanUnassign(3) to be true")
	}
	if s.CanUnassign(4) {
		t.Error("expected CanUnassign(4) to be false")
	}
}
