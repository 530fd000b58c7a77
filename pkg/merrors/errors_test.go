package merrors

import (
	"errors"
	"testing"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		err := New(CodeConfigInvalid, "bad repo chunk size")
		if err.Code != CodeConfigInvalid {
			t.Errorf("Code = %v, want %v", err.Code, CodeConfigInvalid)
		}
		if err.Category != CategoryConfigInvalid {
			t.Errorf("Category = %v, want %v", err.Category, CategoryConfigInvalid)
		}
		if err.Retryable {
			t.Error("CONFIG_INVALID should not be retryable by default")
		}
		if err.Timestamp.IsZero() {
			t.Error("Timestamp not set")
		}
	})

	t.Run("transient io is retryable", func(t *testing.T) {
		err := New(CodeBlockIOFailed, "block 3 put failed")
		if !err.Retryable {
			t.Error("BLOCK_IO_FAILED should be retryable by default")
		}
		if err.Category != CategoryTransientIO {
			t.Errorf("Category = %v, want %v", err.Category, CategoryTransientIO)
		}
	})
}

func TestWrapAndUnwrap(t *testing.T) {
	cause := errors.New("ENOENT")
	err := Wrap(CodeBlockIOFailed, cause, "open failed").WithComponent("dal").WithOperation("open")

	if !errors.Is(err, err) {
		t.Error("errors.Is should match itself")
	}
	if errors.Unwrap(err) != cause {
		t.Error("Unwrap should return the original cause")
	}
	if err.Error() != "[dal:open] BLOCK_IO_FAILED: open failed" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestIsFatal(t *testing.T) {
	cases := []struct {
		code  Code
		fatal bool
	}{
		{CodeConfigInvalid, true},
		{CodeProtocolViolation, true},
		{CodeChainMismatch, true},
		{CodeBlockIOFailed, false},
		{CodeWaitTimeout, false},
	}
	for _, c := range cases {
		if got := IsFatal(New(c.code, "x")); got != c.fatal {
			t.Errorf("IsFatal(%s) = %v, want %v", c.code, got, c.fatal)
		}
	}
	if IsFatal(errors.New("plain error")) {
		t.Error("plain errors should never be fatal")
	}
}

func TestWithDetail(t *testing.T) {
	err := New(CodeStripeUnrecoverable, "too many faulted blocks").WithDetail("faulted", 3)
	if err.Details["faulted"] != 3 {
		t.Errorf("Details[faulted] = %v, want 3", err.Details["faulted"])
	}
}
