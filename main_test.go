package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCRCCombineCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"crc", "combine", "0xE3069283", "0", "0"})
	require.NoError(t, cmd.Execute())
	require.Equal(t, "0xe3069283\n", out.String())
}

func TestCRCCombineRejectsBadInput(t *testing.T) {
	cmd := rootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"crc", "combine", "nope", "0", "1"})
	require.Error(t, cmd.Execute())
}
