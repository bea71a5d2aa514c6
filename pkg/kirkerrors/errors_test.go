package kirkerrors

import (
	"errors"
	"testing"
)

func TestErrorsIsMatchesSentinelRegardlessOfCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Transport(cause)

	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected errors.Is to match ErrTransport")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to match the wrapped cause")
	}
	if errors.Is(err, ErrMint) {
		t.Fatalf("should not match an unrelated sentinel")
	}
}

func TestCodecIncludesEventID(t *testing.T) {
	err := Codec("deadbeef", errors.New("bad json"))
	if err.EventID != "deadbeef" {
		t.Fatalf("EventID = %q, want deadbeef", err.EventID)
	}
	if got := err.Error(); got == "" {
		t.Fatalf("Error() should not be empty")
	}
}

func TestRetryableFlags(t *testing.T) {
	if !Transport(nil).Retryable {
		t.Fatalf("Transport errors should be retryable")
	}
	if !Mint(nil).Retryable {
		t.Fatalf("Mint errors should be retryable")
	}
	if GameRule("", nil).Retryable {
		t.Fatalf("GameRule errors should not be retryable")
	}
}

func TestIsFraudClassification(t *testing.T) {
	fraud := []Class{ClassCodec, ClassCommitment, ClassGameRule, ClassReplay}
	for _, c := range fraud {
		if !c.IsFraud() {
			t.Errorf("%s should be classified as fraud", c)
		}
	}
	nonFraud := []Class{ClassTransport, ClassMint, ClassTimeout, ClassInternal}
	for _, c := range nonFraud {
		if c.IsFraud() {
			t.Errorf("%s should not be classified as fraud", c)
		}
	}
}

func TestNilCauseFallsBackToSentinel(t *testing.T) {
	err := Internal(nil)
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("expected nil-cause Internal error to still match ErrInternal")
	}
}
