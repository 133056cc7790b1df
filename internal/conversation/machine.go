// Package conversation 实现聊天机器人的多步对话：命令分发、按步骤收集参数，并最终调用审批流程
package conversation

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/domain"
	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/metrics"
	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/workflow"
)

// Event 是聊天平台推送过来的一条消息，Selector 来自按钮等结构化回传，优先于 Text
type Event struct {
	ActorID  string `json:"actorId" validate:"required"`
	Text     string `json:"text"`
	Selector string `json:"structuredSelector"`
}

type Option struct {
	Label    string `json:"label"`
	Selector string `json:"selector"`
}

type Reply struct {
	Text    string   `json:"text"`
	Options []Option `json:"options,omitempty"`
}

// Directory 提供对话中需要的员工和班次查询
type Directory interface {
	GetEmployeeByID(ctx context.Context, id int64) (*domain.Employee, error)
	GetEmployeeByChatUserID(ctx context.Context, chatUserID string) (*domain.Employee, error)
	GetActiveEmployees(ctx context.Context) ([]*domain.Employee, error)
	LinkChatUser(ctx context.Context, employeeID int64, chatUserID string) error
	GetShiftsByEmployeeAndDate(ctx context.Context, employeeID int64, date time.Time) ([]*domain.Shift, error)
	GetShiftsBetween(ctx context.Context, employeeID *int64, from, to time.Time) ([]*domain.Shift, error)
}

type Machine struct {
	states        StateStore
	directory     Directory
	manager       *workflow.Manager
	commands      *CommandTable
	lookaheadDays int
}

func NewMachine(states StateStore, directory Directory, manager *workflow.Manager, lookaheadDays int) (*Machine, error) {
	commands, err := LoadCommands()
	if err != nil {
		return nil, err
	}

	return &Machine{
		states:        states,
		directory:     directory,
		manager:       manager,
		commands:      commands,
		lookaheadDays: lookaheadDays,
	}, nil
}

// input 是一条消息中交给步骤处理函数的部分
type input struct {
	text     string
	selector string
}

// Handle 处理一条消息。返回的 error 只表示存储等基础设施故障，业务上的失败都会渲染成 Reply。
// 处理顺序：顶层命令 > 审批按钮 > 当前步骤。命令和审批按钮都会丢弃进行中的流程。
func (m *Machine) Handle(ctx context.Context, ev Event) (*Reply, error) {
	actor, err := m.actor(ctx, ev.ActorID)
	if err != nil {
		return nil, err
	}

	if cmd, ok := m.commands.Match(ev.Text); ok {
		if err := m.states.Clear(ctx, ev.ActorID); err != nil {
			return nil, err
		}
		metrics.RecordConversationCommand(string(cmd))
		return m.dispatch(ctx, ev.ActorID, actor, cmd)
	}

	if act, ok := parseAction(ev.Selector); ok {
		if err := m.states.Clear(ctx, ev.ActorID); err != nil {
			return nil, err
		}
		if actor == nil {
			return notAuthenticated(), nil
		}
		return m.act(ctx, actor, act), nil
	}

	state, err := m.states.Load(ctx, ev.ActorID)
	if err != nil {
		if !errors.Is(err, ErrInvalidState) {
			return nil, err
		}
		slog.Warn("丢弃无效的会话状态", "actorID", ev.ActorID, "error", err)
		if err := m.states.Clear(ctx, ev.ActorID); err != nil {
			return nil, err
		}
		state = nil
	}
	if state == nil {
		return &Reply{Text: "Sorry, I did not understand that. Send \"help\" to see what I can do."}, nil
	}

	if actor == nil && state.Flow != FlowAuthenticate {
		if err := m.states.Clear(ctx, ev.ActorID); err != nil {
			return nil, err
		}
		return notAuthenticated(), nil
	}

	return m.step(ctx, ev.ActorID, actor, state, input{
		text:     strings.TrimSpace(ev.Text),
		selector: strings.TrimSpace(ev.Selector),
	})
}

// actor 返回与聊天用户绑定的员工，尚未认证或已离职时返回 nil
func (m *Machine) actor(ctx context.Context, chatUserID string) (*domain.Employee, error) {
	employee, err := m.directory.GetEmployeeByChatUserID(ctx, chatUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if !employee.IsActive {
		return nil, nil
	}
	return employee, nil
}

func notAuthenticated() *Reply {
	return &Reply{Text: "Please authenticate first by sending \"authenticate\"."}
}

func (m *Machine) dispatch(ctx context.Context, actorID string, actor *domain.Employee, cmd Command) (*Reply, error) {
	if cmd == CommandHelp {
		return &Reply{Text: m.commands.HelpText()}, nil
	}
	if actor == nil && !m.commands.IsPublic(cmd) {
		return notAuthenticated(), nil
	}

	switch cmd {
	case CommandAuthenticate:
		if actor != nil {
			return &Reply{Text: "You are already authenticated as " + actor.FullName + "."}, nil
		}
		return m.advance(ctx, actorID, actor, WaitingEmployeeName(), "")
	case CommandCheckMyShifts:
		return m.myShifts(ctx, actor)
	case CommandCheckAllShifts:
		return m.allShifts(ctx)
	case CommandRequestExchange:
		return m.advance(ctx, actorID, actor, WaitingDate(FlowExchange), "")
	case CommandRequestAddition:
		if !actor.IsManager() {
			return &Reply{Text: "Only managers can request additions."}, nil
		}
		return m.advance(ctx, actorID, actor, WaitingDate(FlowAddition), "")
	case CommandRequestDeletion:
		return m.advance(ctx, actorID, actor, WaitingDate(FlowDeletion), "")
	case CommandCheckPendingRequests:
		return m.pending(ctx, actor), nil
	case CommandCheckExchangeStatus:
		return m.exchangeStatus(ctx, actor), nil
	default:
		return &Reply{Text: m.commands.HelpText()}, nil
	}
}

// advance 保存下一步的状态并返回它的提示语，note 不为空时放在提示语前面
func (m *Machine) advance(ctx context.Context, actorID string, actor *domain.Employee, next *State, note string) (*Reply, error) {
	if err := m.states.Save(ctx, actorID, next); err != nil {
		return nil, err
	}

	reply, err := m.prompt(ctx, actor, next)
	if err != nil {
		return nil, err
	}
	reply.Text = joinLines(note, reply.Text)
	return reply, nil
}

// retry 不修改状态，返回错误信息和当前步骤的提示语
func (m *Machine) retry(ctx context.Context, actor *domain.Employee, state *State, msg string) (*Reply, error) {
	reply, err := m.prompt(ctx, actor, state)
	if err != nil {
		return nil, err
	}
	reply.Text = joinLines(msg, reply.Text)
	return reply, nil
}

func (m *Machine) finish(ctx context.Context, actorID string, text string) (*Reply, error) {
	if err := m.states.Clear(ctx, actorID); err != nil {
		return nil, err
	}
	return &Reply{Text: text}, nil
}

func joinLines(lines ...string) string {
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
