package dtre

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProcessingErrorMessageCarriesContext(t *testing.T) {
	err := &ProcessingError{
		Code:          CodeRuleFailed,
		TransactionID: "tx-9",
		RuleVersion:   NewVersion(1, 0, 0),
		Index:         4,
		Reason:        "insufficient funds",
	}

	msg := err.Error()
	assert.Contains(t, msg, "RULE_APPLICATION_FAILED")
	assert.Contains(t, msg, "tx-9")
	assert.Contains(t, msg, "1.0.0")
	assert.Contains(t, msg, "index=4")
}

func TestIsCancelledMatchesWrappedErrors(t *testing.T) {
	inner := &ProcessingError{Code: CodeCancelled, Reason: "replay cancelled"}
	wrapped := fmt.Errorf("outer: %w", inner)

	assert.True(t, IsCancelled(wrapped))
	assert.False(t, IsCancelled(errors.New("plain")))
	assert.False(t, IsCancelled(&ProcessingError{Code: CodeRuleFailed}))
}

func TestIsNonDeterministic(t *testing.T) {
	err := &ProcessingError{Code: CodeNonDeterministic, Reason: "replicas diverged"}
	assert.True(t, IsNonDeterministic(err))
	assert.False(t, IsNonDeterministic(&ProcessingError{Code: CodeCancelled}))
}

func TestValidationErrorHelpers(t *testing.T) {
	invalidState := &ValidationError{Kind: KindInvalidState, Reason: "negative balance"}
	invalidTx := &ValidationError{Kind: KindInvalidTransaction, Reason: "missing id", TransactionID: "t1"}

	assert.True(t, IsInvalidState(invalidState))
	assert.False(t, IsInvalidState(invalidTx))
	assert.True(t, IsInvalidTransaction(fmt.Errorf("wrap: %w", invalidTx)))
	assert.Contains(t, invalidTx.Error(), "t1")
}

func TestIsCheckpointMismatch(t *testing.T) {
	err := &StateError{
		Kind:     KindCheckpointMismatch,
		Reason:   "hash mismatch",
		Expected: "aa",
		Actual:   "bb",
	}
	assert.True(t, IsCheckpointMismatch(err))
	assert.Contains(t, err.Error(), "expected aa")
	assert.False(t, IsCheckpointMismatch(&StateError{Kind: KindDiffFailed}))
}

func TestRegistryErrorHelpers(t *testing.T) {
	exists := &RegistryError{Kind: KindVersionExists, Version: NewVersion(1, 0, 0)}
	missing := &RegistryError{Kind: KindVersionNotFound, Version: NewVersion(9, 0, 0)}

	assert.True(t, IsVersionExists(exists))
	assert.True(t, IsVersionNotFound(missing))
	assert.False(t, IsVersionExists(missing))
	assert.Contains(t, exists.Error(), "1.0.0")
}

func TestSerializationErrorUnwraps(t *testing.T) {
	inner := errors.New("bad byte")
	err := &SerializationError{Op: "Decode", Reason: "truncated", Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "Decode")
}
