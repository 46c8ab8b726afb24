package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want Command
	}{
		{"create", Command{Name: CmdCreate}},
		{"  START  ", Command{Name: CmdStart}},
		{"join abc234", Command{Name: CmdJoin, Code: "ABC234"}},
		{"pass 3", Command{Name: CmdPass, N: 3}},
		{"auto", Command{Name: CmdAuto}},
		{"ready", Command{Name: CmdReady}},
		{"rematch", Command{Name: CmdRematch}},
		{"lobby", Command{Name: CmdLobby}},
		{"max 6", Command{Name: CmdMax, N: 6}},
		{"leave", Command{Name: CmdLeave}},
		{"help", Command{Name: CmdHelp}},
		{"quit", Command{Name: CmdQuit}},
		{"exit", Command{Name: CmdQuit}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseCommand(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCommandErrors(t *testing.T) {
	for _, line := range []string{
		"",
		"   ",
		"dance",
		"join",
		"join ABC",
		"join ABCDE0",
		"pass",
		"pass two",
		"pass 0",
		"max",
		"start now",
	} {
		t.Run(line, func(t *testing.T) {
			_, err := ParseCommand(line)
			assert.Error(t, err)
		})
	}
}
