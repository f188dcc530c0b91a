package util

import (
	"context"
	"errors"
	"testing"
)

func TestMapErrorNilStaysNil(t *testing.T) {
	if err := MapError(nil); err != nil {
		t.Fatalf("MapError(nil) = %#v, want nil", err)
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		in       error
		wantCode string
	}{
		{"domain error passes through", NewNotFound("case", nil), CodeNotFound},
		{"deadline maps to timeout", context.DeadlineExceeded, CodeTimeout},
		{"cancellation maps to timeout", context.Canceled, CodeTimeout},
		{"generic maps to internal", errors.New("boom"), CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapError(tt.in)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !HasCode(err, tt.wantCode) {
				t.Fatalf("got %v, want code %s", err, tt.wantCode)
			}
		})
	}
}

func TestHasCode(t *testing.T) {
	err := NewCaseClosed("c-1")
	if !HasCode(err, CodeCaseClosed) {
		t.Fatal("expected CASE_CLOSED")
	}
	if HasCode(err, CodeNotFound) {
		t.Fatal("did not expect NOT_FOUND")
	}
	if HasCode(nil, CodeInternal) {
		t.Fatal("nil error carries no code")
	}
}
