package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestSweepError_Error(t *testing.T) {
	err := New(ErrCategoryVerification, CodeKeyMismatch, "unexpected key")
	expected := "[VERIFICATION:KEY_MISMATCH] unexpected key"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestSweepError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("permission denied")
	err := Wrap(ErrCategorySetup, CodeCreateFailed, "create artifact", cause)
	expected := "[SETUP:CREATE_FAILED] create artifact: permission denied"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestSweepError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ErrCategoryBuild, CodeWriteFailed, "write", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestSweepError_Is(t *testing.T) {
	err1 := New(ErrCategoryVerification, CodeBoundViolation, "first")
	err2 := New(ErrCategoryVerification, CodeBoundViolation, "second")
	err3 := New(ErrCategoryVerification, CodeKeyMismatch, "different code")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}

	wrapped := fmt.Errorf("measure Snappy.0.4096.16.grd: %w", err1)
	if !errors.Is(wrapped, err2) {
		t.Error("Is should see through fmt.Errorf wrapping")
	}
}

func TestGetCategory(t *testing.T) {
	err := NewBuildError(CodeOutOfOrder, "key not increasing", nil)
	if GetCategory(err) != ErrCategoryBuild {
		t.Errorf("got %q, want %q", GetCategory(err), ErrCategoryBuild)
	}
	if GetCategory(fmt.Errorf("plain error")) != "" {
		t.Error("non-SweepError should return empty category")
	}
}

func TestGetCode(t *testing.T) {
	err := NewEncodingError(CodeCorruptBlock, "checksum mismatch", nil)
	if GetCode(err) != CodeCorruptBlock {
		t.Errorf("got %q, want %q", GetCode(err), CodeCorruptBlock)
	}
	if GetCode(fmt.Errorf("plain error")) != "" {
		t.Error("non-SweepError should return empty code")
	}
}

func TestIsVerification(t *testing.T) {
	if !IsVerification(fmt.Errorf("wrapped: %w", NewVerificationError(CodeMissingEntry, "gone"))) {
		t.Error("verification error should be detected through wrapping")
	}
	if IsVerification(NewSetupError(CodeOpenFailed, "open", nil)) {
		t.Error("setup error is not a verification error")
	}
}

func TestWithDetails(t *testing.T) {
	err := New(ErrCategoryVerification, CodeKeyMismatch, "bad key")
	detailed := err.WithDetails(map[string]interface{}{"position": 12})

	if detailed.Details["position"] != 12 {
		t.Error("WithDetails should set details")
	}
	// Original should be unmodified
	if err.Details != nil {
		t.Error("WithDetails should not modify original")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	cause := fmt.Errorf("io error")

	s := NewSetupError(CodeMapFailed, "mmap", cause)
	if s.Category != ErrCategorySetup || !errors.Is(s, cause) {
		t.Error("NewSetupError mismatch")
	}

	e := NewEncodingError(CodeSerializeFailed, "bitmap", cause)
	if e.Category != ErrCategoryEncoding {
		t.Error("NewEncodingError mismatch")
	}

	v := NewVerificationError(CodeEntryCount, "short iteration")
	if v.Category != ErrCategoryVerification || v.Code != CodeEntryCount {
		t.Error("NewVerificationError mismatch")
	}

	b := NewBuildError(CodeCapacityExceeded, "map full", cause)
	if b.Category != ErrCategoryBuild {
		t.Error("NewBuildError mismatch")
	}

	c := NewConfigError("bad folder")
	if c.Category != ErrCategoryConfig || c.Code != CodeInvalidConfig {
		t.Error("NewConfigError mismatch")
	}

	i := NewInternalError("unexpected", cause)
	if i.Category != ErrCategoryInternal || i.Code != CodeUnexpected {
		t.Error("NewInternalError mismatch")
	}
}
