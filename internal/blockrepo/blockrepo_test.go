package blockrepo

import (
	"testing"

	"github.com/certen/independant-validator/internal/apk"
	"github.com/certen/independant-validator/internal/model"
)

func mkResult(id uint64, status apk.Status) model.ValidationResult {
	return model.ValidationResult{
		RequestID:    id,
		AssetAddress: "0xabc",
		FileHash:     "0x1",
		Status:       status,
	}
}

func TestReadWrite2BitStatusRoundTrip(t *testing.T) {
	var result [32]byte
	Write2BitStatus(&result, 0, apk.StatusUnavailable)
	Write2BitStatus(&result, 1, apk.StatusSuccess)
	Write2BitStatus(&result, 2, apk.StatusHashMismatch)
	Write2BitStatus(&result, 130, apk.StatusSuccess) // out of range, no-op

	if got := Read2BitStatus(result, 0); got != 0 {
		t.Errorf("index 0: got %d, want 0", got)
	}
	if got := Read2BitStatus(result, 1); got != 1 {
		t.Errorf("index 1: got %d, want 1", got)
	}
	if got := Read2BitStatus(result, 2); got != 3 {
		t.Errorf("index 2: got %d, want 3", got)
	}
	if got := Read2BitStatus(result, 200); got != 3 {
		t.Errorf("out-of-range index: got %d, want 3 (default)", got)
	}
}

func TestEncodeDecodeBlockRoundTrip(t *testing.T) {
	block := CreateBlock(7, []model.ValidationResult{
		mkResult(100, apk.StatusSuccess),
		mkResult(101, apk.StatusHashMismatch),
	})

	data := EncodeBlock(block)
	decoded, err := DecodeBlock(data)
	if err != nil {
		t.Fatalf("DecodeBlock: %v", err)
	}
	if decoded.BlockID != block.BlockID || len(decoded.Requests) != len(block.Requests) {
		t.Fatalf("round-trip mismatch: got %+v", decoded)
	}
	if decoded.Requests[1].Status != apk.StatusHashMismatch {
		t.Fatalf("expected status to round-trip, got %v", decoded.Requests[1].Status)
	}
}

func TestIsValidBlockData(t *testing.T) {
	block := CreateBlock(1, []model.ValidationResult{
		mkResult(10, apk.StatusSuccess),
		mkResult(11, apk.StatusUnavailable),
	})
	ref := ContractBlockRef(1, "ref-1", model.ProtocolBSC, block)

	if !IsValidBlockData(ref, block) {
		t.Fatal("expected freshly built block/ref pair to validate")
	}

	tampered := CreateBlock(1, []model.ValidationResult{
		mkResult(10, apk.StatusHashMismatch),
		mkResult(11, apk.StatusUnavailable),
	})
	if IsValidBlockData(ref, tampered) {
		t.Fatal("expected a tampered block to fail validation against the original ref")
	}
}

func TestAlignBlocks(t *testing.T) {
	own := CreateBlock(5, []model.ValidationResult{
		mkResult(1, apk.StatusUnavailable),
		mkResult(2, apk.StatusSuccess),
		mkResult(3, apk.StatusUnavailable),
	})
	with := CreateBlock(5, []model.ValidationResult{
		mkResult(1, apk.StatusSuccess),
		mkResult(2, apk.StatusUnavailable),
		mkResult(3, apk.StatusUnavailable),
	})

	aligned, mask := AlignBlocks(own, with)

	if aligned.Requests[0].Status != apk.StatusSuccess {
		t.Errorf("index 0: expected to adopt the other validator's Success, got %v", aligned.Requests[0].Status)
	}
	if aligned.Requests[1].Status != apk.StatusUnavailable {
		t.Errorf("index 1: expected to adopt the other validator's Unavailable, got %v", aligned.Requests[1].Status)
	}
	if aligned.Requests[2].Status != apk.StatusUnavailable {
		t.Errorf("index 2: expected both-unavailable to stay Unavailable, got %v", aligned.Requests[2].Status)
	}

	if mask[0]&(1<<0) == 0 {
		t.Error("index 0: expected the unavailable mask bit set (we lacked data they had)")
	}
	if mask[0]&(1<<2) == 0 {
		t.Error("index 2: expected the unavailable mask bit set (both sides lacked data)")
	}
}
