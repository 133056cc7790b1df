package conversation

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

type Command string

const (
	CommandHelp                 Command = "help"
	CommandAuthenticate         Command = "authenticate"
	CommandCheckMyShifts        Command = "check_my_shifts"
	CommandCheckAllShifts       Command = "check_all_shifts"
	CommandRequestExchange      Command = "request_exchange"
	CommandRequestAddition      Command = "request_addition"
	CommandRequestDeletion      Command = "request_deletion"
	CommandCheckPendingRequests Command = "check_pending_requests"
	CommandCheckExchangeStatus  Command = "check_exchange_status"
)

//go:embed commands.yaml
var commandsYAML []byte

type commandSpec struct {
	Name        Command  `yaml:"name"`
	Description string   `yaml:"description"`
	Public      bool     `yaml:"public"`
	Aliases     []string `yaml:"aliases"`
}

type CommandTable struct {
	specs   []commandSpec
	byAlias map[string]*commandSpec
}

func LoadCommands() (*CommandTable, error) {
	return parseCommands(commandsYAML)
}

func parseCommands(raw []byte) (*CommandTable, error) {
	var file struct {
		Commands []commandSpec `yaml:"commands"`
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("无法解析命令表: %w", err)
	}

	table := &CommandTable{
		specs:   file.Commands,
		byAlias: make(map[string]*commandSpec),
	}
	for i := range table.specs {
		spec := &table.specs[i]
		if len(spec.Aliases) == 0 {
			return nil, fmt.Errorf("命令 %s 没有别名", spec.Name)
		}
		for _, alias := range spec.Aliases {
			key := normalize(alias)
			if other, ok := table.byAlias[key]; ok {
				return nil, fmt.Errorf("别名 %q 同时属于 %s 和 %s", alias, other.Name, spec.Name)
			}
			table.byAlias[key] = spec
		}
	}

	return table, nil
}

// Match 只做整句匹配，避免普通输入（例如员工姓名）被误认为命令
func (t *CommandTable) Match(text string) (Command, bool) {
	key := normalize(text)
	if key == "" {
		return "", false
	}
	spec, ok := t.byAlias[key]
	if !ok {
		return "", false
	}
	return spec.Name, true
}

func (t *CommandTable) IsPublic(cmd Command) bool {
	for _, spec := range t.specs {
		if spec.Name == cmd {
			return spec.Public
		}
	}
	return false
}

func (t *CommandTable) HelpText() string {
	var b strings.Builder
	b.WriteString("Available commands:")
	for _, spec := range t.specs {
		fmt.Fprintf(&b, "\n- %s: %s", spec.Aliases[0], spec.Description)
	}
	return b.String()
}
