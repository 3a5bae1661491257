package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestNewError(t *testing.T) {
	err := New(ErrCodeMissingRepo, "no repository configured")

	if err.Code != ErrCodeMissingRepo {
		t.Errorf("expected code %s, got %s", ErrCodeMissingRepo, err.Code)
	}
	if !strings.Contains(err.Error(), "MISSING_REPO") {
		t.Errorf("expected error string to contain code, got %q", err.Error())
	}
	if err.IsRetryable() {
		t.Error("new errors should not be retryable by default")
	}
}

func TestWrapAndUnwrap(t *testing.T) {
	underlying := stderrors.New("connection refused")
	err := Wrap(underlying, ErrCodeRemoteAPI, "repository check failed").
		WithContext("status", 502).
		WithRetryable(true)

	if !stderrors.Is(err, underlying) {
		t.Error("errors.Is should find the underlying error")
	}
	if !err.IsRetryable() {
		t.Error("expected retryable")
	}
	if !strings.Contains(err.Error(), "status: 502") {
		t.Errorf("expected context in message, got %q", err.Error())
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, ErrCodeInternal, "should vanish") != nil {
		t.Error("wrapping nil must return nil")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(New(ErrCodeMissingAuth, "x")); got != ErrCodeMissingAuth {
		t.Errorf("expected MISSING_AUTH, got %s", got)
	}
	if got := CodeOf(stderrors.New("plain")); got != ErrCodeInternal {
		t.Errorf("expected INTERNAL for plain errors, got %s", got)
	}
	if got := CodeOf(nil); got != "" {
		t.Errorf("expected empty code for nil, got %s", got)
	}
}

func TestUserMessage(t *testing.T) {
	err := New(ErrCodeAuthPending, "device flow not finished").
		WithUserMessage("Finish signing in on github.com")

	if err.UserMessage != "Finish signing in on github.com" {
		t.Errorf("unexpected user message: %q", err.UserMessage)
	}
}
