package stdx

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMust1(t *testing.T) {
	t.Run("returns the value on nil error", func(t *testing.T) {
		assert.Equal(t, 42, Must1(42, nil))
	})

	t.Run("panics with the error", func(t *testing.T) {
		boom := errors.New("boom")
		require.PanicsWithError(t, "boom", func() {
			Must1("ignored", boom)
		})
	})
}
