package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestErrorMatching(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantAuth bool
		wantAPI  bool
		wantMsg  string
	}{
		{
			name:     "auth with status",
			err:      &AuthError{Status: 400, Body: `{"error":"invalid_client"}`},
			wantAuth: true,
			wantMsg:  `authenticate with catalog (status 400): {"error":"invalid_client"}`,
		},
		{
			name:     "auth missing credentials",
			err:      &AuthError{Err: errors.New("client id and secret are required")},
			wantAuth: true,
			wantMsg:  "authenticate with catalog: client id and secret are required",
		},
		{
			name:    "api status",
			err:     &APIError{Endpoint: "search", Status: 500, Body: "boom"},
			wantAPI: true,
			wantMsg: "search returned status 500: boom",
		},
		{
			name:    "api transport",
			err:     &APIError{Endpoint: "episodes", Err: context.DeadlineExceeded},
			wantAPI: true,
			wantMsg: "episodes request: context deadline exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.wantAuth, errors.Is(tt.err, ErrAuth)); diff != "" {
				t.Errorf("errors.Is(ErrAuth) mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantAPI, errors.Is(tt.err, ErrAPI)); diff != "" {
				t.Errorf("errors.Is(ErrAPI) mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantMsg, tt.err.Error()); diff != "" {
				t.Errorf("Error() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	wrapped := &APIError{Endpoint: "search", Err: context.Canceled}
	if !errors.Is(wrapped, context.Canceled) {
		t.Error("expected APIError to unwrap to its cause")
	}
}
