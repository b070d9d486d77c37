package appraisal

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorTextCarriesKindAndMessage(t *testing.T) {
	err := NewError(KindTokenExpired, "upstream returned 401")
	if got := err.Error(); got != "TOKEN_EXPIRED: upstream returned 401" {
		t.Fatalf("unexpected error text: %q", got)
	}

	wrapped := WrapError(KindStoreError, errors.New("deadlock detected"))
	if got := wrapped.Error(); got != "STORE_ERROR: deadlock detected" {
		t.Fatalf("unexpected wrapped text: %q", got)
	}
}

func TestKindOfSeesThroughWrapping(t *testing.T) {
	inner := NewError(KindNoToken, "no token")
	outer := fmt.Errorf("processing job: %w", inner)

	if KindOf(outer) != KindNoToken {
		t.Fatalf("expected NO_TOKEN through wrapping, got %q", KindOf(outer))
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatalf("plain errors should have no kind")
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		kind Kind
		want bool
	}{
		{KindValidation, false},
		{KindTokenExpired, true},
		{KindTransport, true},
		{KindAllPageSizesFailed, true},
		{KindNoToken, true},
		{KindStoreError, true},
		{Kind("HTTP_503"), true},
		{Kind("HTTP_403"), false},
	}
	for _, tc := range cases {
		err := NewError(tc.kind, "x")
		if got := err.Retryable(); got != tc.want {
			t.Fatalf("Retryable(%s) = %v, want %v", tc.kind, got, tc.want)
		}
	}
}
