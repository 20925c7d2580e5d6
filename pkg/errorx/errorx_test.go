package errorx

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeErrorIsByCode(t *testing.T) {
	err := Validation("score %d out of range", 3)
	if !IsValidation(err) {
		t.Fatal("expected validation error")
	}
	if IsInvariant(err) {
		t.Fatal("validation error must not match invariant")
	}

	wrapped := fmt.Errorf("save votes: %w", err)
	if !IsValidation(wrapped) {
		t.Fatal("wrapped validation error should still match")
	}
	if GetCode(wrapped) != CodeValidation {
		t.Fatalf("GetCode = %d, want %d", GetCode(wrapped), CodeValidation)
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("deadlock found")
	err := Wrap(cause, CodeTransientStore, "锁定投票")
	if !errors.Is(err, cause) {
		t.Fatal("cause not reachable through errors.Is")
	}
	if !errors.Is(err, ErrTransientStore) {
		t.Fatal("expected transient store category")
	}
	if err.Error() != "锁定投票: deadlock found" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestGetCodeDefault(t *testing.T) {
	if GetCode(errors.New("plain")) != CodeServerBusy {
		t.Fatal("plain errors map to CodeServerBusy")
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(New(CodeNotFound, "活动不存在")) {
		t.Fatal("expected not found")
	}
	if IsNotFound(nil) {
		t.Fatal("nil is not a not-found error")
	}
}
