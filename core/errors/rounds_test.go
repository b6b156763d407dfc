package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	require.Equal(t, "", KindOf(nil))
	require.Equal(t, KindInternal, KindOf(stderrors.New("disk on fire")))

	wrapped := fmt.Errorf("stake round 3: %w", ErrCapacityExceeded)
	require.Equal(t, KindCapacityExceeded, KindOf(wrapped))

	double := fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", ErrHaltedState))
	require.Equal(t, KindHaltedState, KindOf(double))
}

func TestKindsAreDistinct(t *testing.T) {
	seen := map[string]bool{}
	for _, entry := range kinds {
		require.False(t, seen[entry.kind], "duplicate kind %s", entry.kind)
		seen[entry.kind] = true
		require.Equal(t, entry.kind, KindOf(entry.err))
	}
	require.Len(t, seen, 10)
}
