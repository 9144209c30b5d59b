package options

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	depth int
	name  string
}

func TestApply(t *testing.T) {
	t.Run("applies options in order", func(t *testing.T) {
		cfg := &testConfig{}
		err := Apply[*testConfig](cfg,
			NoError(func(c *testConfig) { c.name = "first" }),
			NoError(func(c *testConfig) { c.name = "second" }),
		)
		require.NoError(t, err)
		require.Equal(t, "second", cfg.name)
	})

	t.Run("stops at first error", func(t *testing.T) {
		cfg := &testConfig{}
		err := Apply[*testConfig](cfg,
			New(func(c *testConfig) error { return errors.New("depth must be >= 0") }),
			NoError(func(c *testConfig) { c.depth = 3 }),
		)
		require.Error(t, err)
		require.Zero(t, cfg.depth)
	})

	t.Run("skips nil options", func(t *testing.T) {
		cfg := &testConfig{}
		require.NoError(t, Apply[*testConfig](cfg, nil))
	})
}
