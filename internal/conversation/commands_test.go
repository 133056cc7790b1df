package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandTableMatch(t *testing.T) {
	table, err := LoadCommands()
	require.NoError(t, err)

	tests := []struct {
		input string
		want  Command
		ok    bool
	}{
		{"help", CommandHelp, true},
		{"  HELP ", CommandHelp, true},
		{"ヘルプ", CommandHelp, true},
		{"Request Exchange", CommandRequestExchange, true},
		{"requestexchange", CommandRequestExchange, true},
		{"シフト 交代", CommandRequestExchange, true},
		{"check pending requests", CommandCheckPendingRequests, true},
		{"承認待ち", CommandCheckPendingRequests, true},
		{"全員のシフト", CommandCheckAllShifts, true},
		{"exchange status", CommandCheckExchangeStatus, true},
		{"please help me", "", false},
		{"Bob Suzuki", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := table.Match(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommandTablePublicCommands(t *testing.T) {
	table, err := LoadCommands()
	require.NoError(t, err)

	assert.True(t, table.IsPublic(CommandHelp))
	assert.True(t, table.IsPublic(CommandAuthenticate))
	assert.False(t, table.IsPublic(CommandRequestExchange))
	assert.False(t, table.IsPublic(CommandCheckMyShifts))
}

func TestCommandTableRejectsDuplicateAliases(t *testing.T) {
	_, err := parseCommands([]byte(`
commands:
  - name: help
    aliases: [help]
  - name: authenticate
    aliases: [" Help "]
`))
	assert.Error(t, err)

	_, err = parseCommands([]byte(`
commands:
  - name: help
`))
	assert.Error(t, err)
}

func TestHelpTextListsEveryCommand(t *testing.T) {
	table, err := LoadCommands()
	require.NoError(t, err)

	help := table.HelpText()
	for _, cmd := range []string{"help", "authenticate", "check my shifts", "check all shifts", "request exchange",
		"request addition", "request deletion", "check pending requests", "check exchange status"} {
		assert.Contains(t, help, "- "+cmd+":")
	}
}
