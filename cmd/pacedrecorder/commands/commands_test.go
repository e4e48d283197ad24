package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "record", "extract", "plan", "config"} {
		assert.True(t, names[want], want)
	}
}

func TestRootCommand_OverrideFlags(t *testing.T) {
	for _, name := range []string{"config", "port", "log-level", "device", "fps"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), name)
	}
}

func TestRunPlan_RejectsUnknownMethod(t *testing.T) {
	planMethod = "random"
	defer func() { planMethod = "evenly_spaced" }()
	require.Error(t, runPlan(planCmd, nil))
}
