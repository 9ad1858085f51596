package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := NewRegistrationError("template_fetch", "failed to fetch template", cause).
		WithComponent("my-counter").
		WithSource("components/my-counter.html")

	msg := err.Error()
	assert.Contains(t, msg, "[template_fetch]")
	assert.Contains(t, msg, "component:my-counter")
	assert.Contains(t, msg, "components/my-counter.html")
	assert.Contains(t, msg, "failed to fetch template")
	assert.Contains(t, msg, "connection refused")
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := NewScriptError("script threw", cause)

	assert.ErrorIs(t, err, cause)

	var se *SingletError
	require.ErrorAs(t, fmt.Errorf("wrapped: %w", err), &se)
	assert.Equal(t, ErrorTypeScript, se.Type)
}

func TestIsMatchesTypeAndCode(t *testing.T) {
	err := NewRegistrationError("no_template", "source has no template", nil)

	assert.True(t, stderrors.Is(err, &SingletError{Type: ErrorTypeRegistration, Code: "no_template"}))
	assert.True(t, stderrors.Is(err, &SingletError{Type: ErrorTypeRegistration}), "empty code matches any code")
	assert.False(t, stderrors.Is(err, &SingletError{Type: ErrorTypeRegistration, Code: "template_fetch"}))
	assert.False(t, stderrors.Is(err, &SingletError{Type: ErrorTypeScript}))
}

func TestRecoverability(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"registration", NewRegistrationError("template_fetch", "fetch failed", nil), false},
		{"script", NewScriptError("threw", nil), true},
		{"resource", NewResourceError("style.css", nil), true},
		{"binding", NewBindingError("count > 0", nil), true},
		{"attribute", NewAttributeError("data", "{bad", nil), true},
		{"internal", NewInternalError("invariant broken", nil), false},
		{"plain error", fmt.Errorf("other"), false},
		{"wrapped", fmt.Errorf("ctx: %w", NewScriptError("threw", nil)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRecoverable(tt.err))
		})
	}
}

func TestDetailAttached(t *testing.T) {
	err := NewBindingError("count >", fmt.Errorf("syntax error"))
	assert.Equal(t, "count >", err.Detail)

	err = NewScriptError("threw", nil).WithDetail("let x =;")
	assert.Equal(t, "let x =;", err.Detail)
}
