package rferrors

import (
	"errors"
	"testing"
)

func TestIsRetryableByClass(t *testing.T) {
	if !IsRetryable(New(ClassTimeout, "deadline exceeded")) {
		t.Fatalf("timeout should be retryable")
	}
	if IsRetryable(New(ClassPermissionDenied, "nope")) {
		t.Fatalf("permission denied should not be retryable")
	}
	if IsRetryable(nil) {
		t.Fatalf("nil error should not be retryable")
	}
}

func TestIsLinkFatal(t *testing.T) {
	if !IsLinkFatal(New(ClassProtocol, "bad frame")) {
		t.Fatalf("protocol errors should be link-fatal")
	}
	if IsLinkFatal(New(ClassNotFound, "missing")) {
		t.Fatalf("not-found should not be link-fatal")
	}
}

func TestWrapNilReturnsNil(t *testing.T) {
	if err := Wrap(ClassInternal, "wrapping nothing", nil); err != nil {
		t.Fatalf("Wrap(nil) = %v, want nil", err)
	}
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("disk error")
	err := Wrap(ClassDiskFull, "writing file", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("wrapped error should unwrap to cause")
	}
	if ClassOf(err) != ClassDiskFull {
		t.Fatalf("ClassOf = %v, want ClassDiskFull", ClassOf(err))
	}
}

func TestClassOfNonTaxonomyErrorIsInternal(t *testing.T) {
	if ClassOf(errors.New("plain error")) != ClassInternal {
		t.Fatalf("plain errors should classify as internal")
	}
}
