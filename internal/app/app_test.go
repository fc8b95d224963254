package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnilearn/omnilearn/internal/config"
)

func TestSetup_NilConfig(t *testing.T) {
	a, err := Setup(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrConfigNil)
	assert.Nil(t, a)
}

func TestClose_PartiallyInitialized(t *testing.T) {
	// Close must tolerate an App where setup failed before any resource
	// was acquired.
	a := &App{}
	assert.NoError(t, a.Close())
}
