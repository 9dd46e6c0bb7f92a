package corerr_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edgevdb/core/internal/corerr"
)

func TestClassifyErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind corerr.Kind
	}{
		{"invalid", corerr.NewInvalidArgument("dimension mismatch: expected %d got %d", 4, 3), corerr.KindInvalidArgument},
		{"not found", corerr.NewNotFound("collection %q", "demo"), corerr.KindNotFound},
		{"conflict", corerr.NewConflict("collection %q exists", "demo"), corerr.KindConflict},
		{"resource exhausted", corerr.NewResourceExhausted("capacity cap reached"), corerr.KindResourceExhausted},
		{"timeout", corerr.NewTimeout("request exceeded deadline"), corerr.KindTimeout},
		{"unavailable", corerr.NewUnavailable("storage unavailable"), corerr.KindUnavailable},
		{"internal", corerr.NewInternal("invariant violated"), corerr.KindInternal},
		{"unclassified", errUnwrapped{}, corerr.KindInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kind, msg := corerr.ClassifyErr(tc.err)
			require.Equal(t, tc.kind, kind)
			require.NotEmpty(t, msg)
		})
	}
}

type errUnwrapped struct{}

func (errUnwrapped) Error() string { return "boom" }
