package types

import (
	"errors"
	"strings"
	"testing"
)

func TestFetchErrorUnwrap(t *testing.T) {
	err := NewRedirectError("https://example.com/", "http://10.0.0.1/")
	if !errors.Is(err, ErrRedirectNotFollowed) {
		t.Error("Redirect error should unwrap to ErrRedirectNotFollowed")
	}

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatal("Expected errors.As to find *FetchError")
	}
	if fe.Location != "http://10.0.0.1/" {
		t.Errorf("Expected location preserved, got %q", fe.Location)
	}
}

func TestFetchErrorRetryable(t *testing.T) {
	tests := []struct {
		err       *FetchError
		retryable bool
	}{
		{NewTimeoutError("u", nil), true},
		{NewConnectionError("u", errors.New("refused")), true},
		{NewRedirectError("u", "l"), false},
		{NewTooLargeError("u", 1024), false},
	}

	for _, tt := range tests {
		if got := tt.err.Retryable(); got != tt.retryable {
			t.Errorf("Retryable() for %s = %v, want %v", tt.err.Reason, got, tt.retryable)
		}
	}
}

func TestNewTooLargeErrorMessage(t *testing.T) {
	err := NewTooLargeError("https://example.com/", 5<<20)
	if !strings.Contains(err.Error(), "5242880") {
		t.Errorf("Expected limit in message, got %q", err.Error())
	}
	if !errors.Is(err, ErrResponseTooLarge) {
		t.Error("Expected ErrResponseTooLarge in chain")
	}
}

func TestFetchRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid", "https://example.com/", false},
		{"empty", "", true},
		{"too long", "https://example.com/" + strings.Repeat("a", MaxURLLength), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := FetchRequest{URL: tt.url}
			err := req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
