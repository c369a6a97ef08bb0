package redact

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "ascii", in: "foobar@example.com", want: "fo***@example.com"},
		{name: "short_local", in: "ab@ex.com", want: "***@ex.com"},
		{name: "no_at", in: "no-at-here", want: "***"},
		{name: "multiple_at", in: "a@b@c", want: "***"},
		{name: "empty", in: "", want: "***"},
		{name: "unicode", in: "юзер@пример.рф", want: "юз***@пример.рф"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, Email(tt.in))
		})
	}
}

func TestLiterals(t *testing.T) {
	t.Parallel()

	require.Equal(t, "[REDACTED_TOKEN]", Token())
	require.Equal(t, "[REDACTED_PASSWORD]", Password())
}

func TestSnippet(t *testing.T) {
	t.Parallel()

	require.Empty(t, Snippet(nil, 10))
	require.Empty(t, Snippet([]byte("abc"), 0))
	require.Equal(t, "abc", Snippet([]byte("abc"), 10))
	require.Equal(t, "abcde...", Snippet([]byte("abcdefgh"), 5))
	require.Equal(t, `{"token":"[REDACTED_TOKEN]"}`, Snippet([]byte(`{"token":"T1-secret"}`), 100, "T1-secret", ""))

	// "é" is two bytes; cutting inside it backs off to the rune start.
	require.Equal(t, "a...", Snippet([]byte("aé"), 2))
}
