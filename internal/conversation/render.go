package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/domain"
	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/workflow"
)

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

type verb string

const (
	verbApprove verb = "approve"
	verbReject  verb = "reject"
	verbCancel  verb = "cancel"
)

// action 是审批按钮回传的 <verb>_<id> 或 <verb>_<kind>_<id>，省略 kind 时表示换班
type action struct {
	verb verb
	kind domain.RequestKind
	id   int64
}

var actionPattern = regexp.MustCompile(`^(approve|reject|cancel)(?:_(addition|deletion))?_(\d+)$`)

func parseAction(selector string) (action, bool) {
	groups := actionPattern.FindStringSubmatch(strings.TrimSpace(selector))
	if groups == nil {
		return action{}, false
	}

	id, err := strconv.ParseInt(groups[3], 10, 64)
	if err != nil {
		return action{}, false
	}

	act := action{verb: verb(groups[1]), kind: domain.RequestKindExchange, id: id}
	if groups[2] != "" {
		act.kind = domain.RequestKind(groups[2])
	}
	// 只有换班申请可以撤回
	if act.verb == verbCancel && act.kind != domain.RequestKindExchange {
		return action{}, false
	}

	return act, true
}

func actionSelector(v verb, kind domain.RequestKind, id int64) string {
	if kind == domain.RequestKindExchange {
		return fmt.Sprintf("%s_%d", v, id)
	}
	return fmt.Sprintf("%s_%s_%d", v, kind, id)
}

func (m *Machine) act(ctx context.Context, actor *domain.Employee, act action) *Reply {
	got := m.manager.Get(ctx, act.id)
	if !got.Success {
		return &Reply{Text: renderFailure(got.Kind, got.Message)}
	}
	if got.Data.Kind != act.kind {
		return &Reply{Text: "That button does not belong to this request."}
	}

	var res workflow.Result[*domain.ApprovalRequest]
	switch act.verb {
	case verbApprove:
		res = m.manager.Approve(ctx, act.id, actor.ID)
	case verbReject:
		res = m.manager.Reject(ctx, act.id, actor.ID)
	default:
		res = m.manager.Cancel(ctx, act.id, actor.ID)
	}

	if !res.Success {
		return &Reply{Text: renderFailure(res.Kind, res.Message)}
	}
	return &Reply{Text: fmt.Sprintf("Request #%d %s.", res.Data.ID, res.Data.Status)}
}

// renderFailure 把审批流程的失败结果转换成给用户看的文字
func renderFailure(kind workflow.ErrorKind, msg string) string {
	switch kind {
	case workflow.KindValidation:
		return "Please check your input: " + msg + "."
	case workflow.KindAuthorization:
		return "Sorry, you cannot do that: " + msg + "."
	case workflow.KindDuplicateRequest:
		return "A matching request is already waiting for an answer: " + msg + "."
	case workflow.KindNotFound:
		return "It could not be found, it may have been removed: " + msg + "."
	case workflow.KindAlreadyProcessed:
		return "Nothing was changed: " + msg + "."
	default:
		return "Something went wrong on our side. Please try again later."
	}
}

func (m *Machine) myShifts(ctx context.Context, actor *domain.Employee) (*Reply, error) {
	from, to := dayRange(m.manager.Today(), m.lookaheadDays)
	shifts, err := m.directory.GetShiftsBetween(ctx, &actor.ID, from, to)
	if err != nil {
		return nil, err
	}
	if len(shifts) == 0 {
		return &Reply{Text: fmt.Sprintf("You have no shifts in the next %d days.", m.lookaheadDays)}, nil
	}

	lines := []string{"Your upcoming shifts:"}
	for _, shift := range shifts {
		line := "- " + shift.DateString() + " " + shift.TimeRange()
		if shift.SourceEmployeeID != nil {
			name, err := m.displayName(ctx, *shift.SourceEmployeeID)
			if err != nil {
				return nil, err
			}
			line += " (taken over from " + name + ")"
		} else if shift.Modified {
			line += " (changed)"
		}
		lines = append(lines, line)
	}

	return &Reply{Text: strings.Join(lines, "\n")}, nil
}

func (m *Machine) allShifts(ctx context.Context) (*Reply, error) {
	from, to := dayRange(m.manager.Today(), m.lookaheadDays)
	shifts, err := m.directory.GetShiftsBetween(ctx, nil, from, to)
	if err != nil {
		return nil, err
	}
	if len(shifts) == 0 {
		return &Reply{Text: fmt.Sprintf("Nobody has shifts in the next %d days.", m.lookaheadDays)}, nil
	}

	names := make(map[int64]string)
	lines := []string{"Upcoming shifts:"}
	current := ""
	for _, shift := range shifts {
		if day := shift.DateString(); day != current {
			current = day
			lines = append(lines, day)
		}
		name, ok := names[shift.EmployeeID]
		if !ok {
			name, err = m.displayName(ctx, shift.EmployeeID)
			if err != nil {
				return nil, err
			}
			names[shift.EmployeeID] = name
		}
		lines = append(lines, fmt.Sprintf("  %s %s", shift.TimeRange(), name))
	}

	return &Reply{Text: strings.Join(lines, "\n")}, nil
}

func (m *Machine) describe(ctx context.Context, request *domain.ApprovalRequest) string {
	requester, err := m.displayName(ctx, request.RequesterID)
	if err != nil {
		requester = fmt.Sprintf("#%d", request.RequesterID)
	}
	when := request.Date.Format(domain.DateLayout) + " " + request.TimeRange()

	switch request.Kind {
	case domain.RequestKindExchange:
		return fmt.Sprintf("#%d exchange: %s asks you to take over %s", request.ID, requester, when)
	case domain.RequestKindAddition:
		return fmt.Sprintf("#%d addition: %s asks you to work %s", request.ID, requester, when)
	default:
		return fmt.Sprintf("#%d deletion: %s wants to remove %s (reason: %s)", request.ID, requester, when, request.Reason)
	}
}

func (m *Machine) pending(ctx context.Context, actor *domain.Employee) *Reply {
	res := m.manager.PendingFor(ctx, actor.ID)
	if !res.Success {
		return &Reply{Text: renderFailure(res.Kind, res.Message)}
	}
	if len(res.Data) == 0 {
		return &Reply{Text: "No requests are waiting for your answer."}
	}

	reply := &Reply{Options: make([]Option, 0, 2*len(res.Data))}
	lines := []string{"Requests waiting for your answer:"}
	for _, request := range res.Data {
		lines = append(lines, m.describe(ctx, request))
		reply.Options = append(reply.Options,
			Option{Label: fmt.Sprintf("Approve #%d", request.ID), Selector: actionSelector(verbApprove, request.Kind, request.ID)},
			Option{Label: fmt.Sprintf("Reject #%d", request.ID), Selector: actionSelector(verbReject, request.Kind, request.ID)},
		)
	}
	reply.Text = strings.Join(lines, "\n")

	return reply
}

func (m *Machine) exchangeStatus(ctx context.Context, actor *domain.Employee) *Reply {
	res := m.manager.OutgoingExchanges(ctx, actor.ID)
	if !res.Success {
		return &Reply{Text: renderFailure(res.Kind, res.Message)}
	}
	if len(res.Data) == 0 {
		return &Reply{Text: "You have not sent any exchange requests."}
	}

	reply := &Reply{}
	lines := []string{"Your exchange requests:"}
	for _, request := range res.Data {
		to := "?"
		if request.CounterpartyID != nil {
			name, err := m.displayName(ctx, *request.CounterpartyID)
			if err != nil {
				name = fmt.Sprintf("#%d", *request.CounterpartyID)
			}
			to = name
		}
		lines = append(lines, fmt.Sprintf("#%d %s %s to %s: %s",
			request.ID, request.Date.Format(domain.DateLayout), request.TimeRange(), to, request.Status))

		if request.Status == domain.RequestStatusPending {
			reply.Options = append(reply.Options, Option{
				Label:    fmt.Sprintf("Cancel #%d", request.ID),
				Selector: actionSelector(verbCancel, request.Kind, request.ID),
			})
		}
	}
	reply.Text = strings.Join(lines, "\n")

	return reply
}
