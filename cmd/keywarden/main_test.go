package main

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
)

// The graph must resolve every provider, including the vault client feeding
// the config secret overlay and the tracer registration.
func TestApplicationGraph(t *testing.T) {
	require.NoError(t, fx.ValidateApp(options()...))
}
