package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/domain"
	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/interval"
	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/workflow"
)

const (
	selectorConfirmYes    = "confirm_yes"
	selectorConfirmNo     = "confirm_no"
	selectorShift         = "shift_"
	selectorDeletionShift = "deletion_shift_"
)

var errNoSuchShift = errors.New("please choose one of the listed shifts")

func shiftSelector(flow Flow, shiftID int64) string {
	if flow == FlowDeletion {
		return selectorDeletionShift + strconv.FormatInt(shiftID, 10)
	}
	return selectorShift + strconv.FormatInt(shiftID, 10)
}

// prompt 返回某个步骤向用户提出的问题，班次选择和确认步骤附带按钮
func (m *Machine) prompt(ctx context.Context, actor *domain.Employee, state *State) (*Reply, error) {
	when := state.SelectedDate + " " + state.StartTime.String() + "-" + state.EndTime.String()

	switch state.Step {
	case StepWaitingDate:
		switch state.Flow {
		case FlowExchange:
			return &Reply{Text: "Which date is the shift you want to hand over? (MM/DD or YYYY-MM-DD)"}, nil
		case FlowAddition:
			return &Reply{Text: "Which date should the extra shift be on? (MM/DD or YYYY-MM-DD)"}, nil
		default:
			return &Reply{Text: "Which date is the shift you want to remove? (MM/DD or YYYY-MM-DD)"}, nil
		}

	case StepWaitingShiftSelection:
		date, err := state.Date()
		if err != nil {
			return nil, err
		}
		shifts, err := m.directory.GetShiftsByEmployeeAndDate(ctx, actor.ID, date)
		if err != nil {
			return nil, err
		}

		reply := &Reply{Options: make([]Option, 0, len(shifts))}
		lines := make([]string, 0, len(shifts)+1)
		if state.Flow == FlowDeletion {
			lines = append(lines, fmt.Sprintf("Which shift on %s do you want to remove?", state.SelectedDate))
		} else {
			lines = append(lines, fmt.Sprintf("You have several shifts on %s. Which one do you want to hand over?", state.SelectedDate))
		}
		for i, shift := range shifts {
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, shift.TimeRange()))
			reply.Options = append(reply.Options, Option{Label: shift.TimeRange(), Selector: shiftSelector(state.Flow, shift.ID)})
		}
		reply.Text = strings.Join(lines, "\n")
		return reply, nil

	case StepWaitingTime:
		return &Reply{Text: fmt.Sprintf("What time on %s? (HH:MM-HH:MM)", state.SelectedDate)}, nil

	case StepWaitingEmployeeSelection:
		if state.Flow == FlowExchange {
			return &Reply{Text: fmt.Sprintf("Who should take over your shift on %s? Enter one or more names separated by commas.", when)}, nil
		}
		return &Reply{Text: fmt.Sprintf("Who should work on %s? Enter one or more names separated by commas.", when)}, nil

	case StepWaitingConfirmation:
		names, err := m.displayNames(ctx, state.TargetEmployeeIDs)
		if err != nil {
			return nil, err
		}
		kind := "an exchange"
		if state.Flow == FlowAddition {
			kind = "an addition"
		}
		return &Reply{
			Text: fmt.Sprintf("Send %s request for %s to %s?", kind, when, strings.Join(names, ", ")),
			Options: []Option{
				{Label: "Yes", Selector: selectorConfirmYes},
				{Label: "No", Selector: selectorConfirmNo},
			},
		}, nil

	case StepWaitingReason:
		return &Reply{Text: fmt.Sprintf("Why do you want to remove the shift on %s?", when)}, nil

	case StepWaitingEmployeeName:
		return &Reply{Text: "Please enter your full name as registered."}, nil

	default:
		return nil, fmt.Errorf("%w: 未知的步骤 %q", ErrInvalidState, state.Step)
	}
}

func (m *Machine) step(ctx context.Context, actorID string, actor *domain.Employee, state *State, in input) (*Reply, error) {
	switch state.Step {
	case StepWaitingDate:
		return m.onDate(ctx, actorID, actor, state, in)
	case StepWaitingShiftSelection:
		return m.onShiftSelection(ctx, actorID, actor, state, in)
	case StepWaitingTime:
		return m.onTime(ctx, actorID, actor, state, in)
	case StepWaitingEmployeeSelection:
		return m.onEmployeeSelection(ctx, actorID, actor, state, in)
	case StepWaitingConfirmation:
		return m.onConfirmation(ctx, actorID, actor, state, in)
	case StepWaitingReason:
		return m.onReason(ctx, actorID, actor, state, in)
	case StepWaitingEmployeeName:
		return m.onEmployeeName(ctx, actorID, state, in)
	default:
		return m.finish(ctx, actorID, "Sorry, I lost track of this conversation. Please start again.")
	}
}

func (m *Machine) onDate(ctx context.Context, actorID string, actor *domain.Employee, state *State, in input) (*Reply, error) {
	date, err := ParseDate(in.text, m.manager.Today())
	if err != nil {
		return m.retry(ctx, actor, state, err.Error())
	}

	if state.Flow == FlowAddition {
		return m.advance(ctx, actorID, actor, WaitingTime(date), "")
	}

	shifts, err := m.directory.GetShiftsByEmployeeAndDate(ctx, actor.ID, date)
	if err != nil {
		return nil, err
	}
	if len(shifts) == 0 {
		return m.retry(ctx, actor, state, fmt.Sprintf("You have no shifts on %s.", date.Format(domain.DateLayout)))
	}

	if state.Flow == FlowExchange && len(shifts) == 1 {
		shift := shifts[0]
		return m.advance(ctx, actorID, actor, WaitingEmployeeSelection(FlowExchange, date, shift.StartTime, shift.EndTime, shift.ID), "")
	}

	return m.advance(ctx, actorID, actor, WaitingShiftSelection(state.Flow, date), "")
}

// pickShift 接受按钮回传的 shift_<id>、列表序号或与班次一致的时间段
func pickShift(shifts []*domain.Shift, in input) (*domain.Shift, error) {
	if in.selector != "" {
		raw := strings.TrimPrefix(strings.TrimPrefix(in.selector, selectorDeletionShift), selectorShift)
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, errNoSuchShift
		}
		for _, shift := range shifts {
			if shift.ID == id {
				return shift, nil
			}
		}
		return nil, errNoSuchShift
	}

	if n, err := strconv.Atoi(in.text); err == nil {
		if n < 1 || n > len(shifts) {
			return nil, errNoSuchShift
		}
		return shifts[n-1], nil
	}

	start, end, err := ParseTimeRange(in.text)
	if err != nil {
		return nil, errNoSuchShift
	}
	for _, shift := range shifts {
		if shift.StartTime == start && shift.EndTime == end {
			return shift, nil
		}
	}
	return nil, errNoSuchShift
}

func (m *Machine) onShiftSelection(ctx context.Context, actorID string, actor *domain.Employee, state *State, in input) (*Reply, error) {
	date, err := state.Date()
	if err != nil {
		return nil, err
	}
	shifts, err := m.directory.GetShiftsByEmployeeAndDate(ctx, actor.ID, date)
	if err != nil {
		return nil, err
	}
	if len(shifts) == 0 {
		return m.finish(ctx, actorID, fmt.Sprintf("You no longer have any shifts on %s.", state.SelectedDate))
	}

	shift, err := pickShift(shifts, in)
	if err != nil {
		return m.retry(ctx, actor, state, err.Error())
	}

	if state.Flow == FlowDeletion {
		return m.advance(ctx, actorID, actor, WaitingReason(date, shift), "")
	}
	return m.advance(ctx, actorID, actor, WaitingEmployeeSelection(FlowExchange, date, shift.StartTime, shift.EndTime, shift.ID), "")
}

func (m *Machine) onTime(ctx context.Context, actorID string, actor *domain.Employee, state *State, in input) (*Reply, error) {
	start, end, err := ParseTimeRange(in.text)
	if err != nil {
		return m.retry(ctx, actor, state, err.Error())
	}

	date, err := state.Date()
	if err != nil {
		return nil, err
	}
	return m.advance(ctx, actorID, actor, WaitingEmployeeSelection(FlowAddition, date, start, end, 0), "")
}

// onEmployeeSelection 解析姓名后排除当天已有重叠班次的员工，全部被排除时停留在本步骤
func (m *Machine) onEmployeeSelection(ctx context.Context, actorID string, actor *domain.Employee, state *State, in input) (*Reply, error) {
	employees, err := m.directory.GetActiveEmployees(ctx)
	if err != nil {
		return nil, err
	}
	candidates := make([]*domain.Employee, 0, len(employees))
	for _, e := range employees {
		if e.ID != actor.ID {
			candidates = append(candidates, e)
		}
	}

	selected, err := ResolveEmployees(in.text, candidates)
	if err != nil {
		return m.retry(ctx, actor, state, err.Error())
	}

	date, err := state.Date()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(selected))
	for _, e := range selected {
		ids = append(ids, e.ID)
	}

	partition, err := m.manager.Detector().Partition(ctx, ids, date, interval.Span{Start: state.StartTime, End: state.EndTime})
	if err != nil {
		return nil, err
	}

	note := overlapNote(partition.Conflicting)
	if len(partition.Available) == 0 {
		return m.retry(ctx, actor, state, joinLines(note, "Nobody is left to ask. Please choose other employees."))
	}

	return m.advance(ctx, actorID, actor, WaitingConfirmation(state, partition.Available), note)
}

func overlapNote(conflicts []interval.Conflict) string {
	if len(conflicts) == 0 {
		return ""
	}
	names := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		names = append(names, c.DisplayName)
	}
	return fmt.Sprintf("Left out because they already have an overlapping shift: %s.", strings.Join(names, ", "))
}

func confirmation(in input) (yes bool, ok bool) {
	switch in.selector {
	case selectorConfirmYes:
		return true, true
	case selectorConfirmNo:
		return false, true
	}
	return ParseConfirmation(in.text)
}

func (m *Machine) onConfirmation(ctx context.Context, actorID string, actor *domain.Employee, state *State, in input) (*Reply, error) {
	yes, ok := confirmation(in)
	if !ok {
		return m.retry(ctx, actor, state, "Please answer yes or no.")
	}
	if !yes {
		return m.finish(ctx, actorID, "Request cancelled. Nothing was sent.")
	}

	date, err := state.Date()
	if err != nil {
		return nil, err
	}

	var res workflow.Result[*workflow.Submitted]
	if state.Flow == FlowAddition {
		res = m.manager.CreateAddition(ctx, actor.ID, date, state.StartTime, state.EndTime, state.TargetEmployeeIDs)
	} else {
		res = m.manager.CreateExchange(ctx, actor.ID, state.ShiftID, state.TargetEmployeeIDs)
	}
	return m.submitted(ctx, actorID, actor, state, res)
}

func (m *Machine) onReason(ctx context.Context, actorID string, actor *domain.Employee, state *State, in input) (*Reply, error) {
	if in.text == "" {
		return m.retry(ctx, actor, state, "Please enter a reason.")
	}

	res := m.manager.CreateDeletion(ctx, actor.ID, state.ShiftID, in.text)
	return m.submitted(ctx, actorID, actor, state, res)
}

// submitted 渲染创建结果：校验失败保留状态让用户重试，其他情况都结束流程
func (m *Machine) submitted(ctx context.Context, actorID string, actor *domain.Employee, state *State, res workflow.Result[*workflow.Submitted]) (*Reply, error) {
	if !res.Success {
		if res.Kind == workflow.KindValidation {
			return m.retry(ctx, actor, state, renderFailure(res.Kind, res.Message))
		}
		return m.finish(ctx, actorID, renderFailure(res.Kind, res.Message))
	}

	return m.finish(ctx, actorID, joinLines("Done: "+res.Message+".", overlapNote(res.Data.Advisories)))
}

func (m *Machine) onEmployeeName(ctx context.Context, actorID string, state *State, in input) (*Reply, error) {
	employees, err := m.directory.GetActiveEmployees(ctx)
	if err != nil {
		return nil, err
	}

	key := normalize(in.text)
	var matches []*domain.Employee
	for _, e := range employees {
		if key != "" && normalize(e.FullName) == key {
			matches = append(matches, e)
		}
	}

	switch len(matches) {
	case 0:
		return m.retry(ctx, nil, state, fmt.Sprintf("no matching employee: %s", in.text))
	case 1:
	default:
		return m.retry(ctx, nil, state, fmt.Sprintf("multiple employees match %s; please ask a manager for help", in.text))
	}

	employee := matches[0]
	if employee.ChatUserID != nil && *employee.ChatUserID != actorID {
		return m.finish(ctx, actorID, "This employee is already linked to another chat account. Please ask a manager for help.")
	}
	if err := m.directory.LinkChatUser(ctx, employee.ID, actorID); err != nil {
		return nil, err
	}

	return m.finish(ctx, actorID, fmt.Sprintf("Welcome, %s! You are now authenticated.", employee.FullName))
}

// displayNames 返回员工的显示名，找不到的员工显示为 #id
func (m *Machine) displayNames(ctx context.Context, ids []int64) ([]string, error) {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		name, err := m.displayName(ctx, id)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

func (m *Machine) displayName(ctx context.Context, id int64) (string, error) {
	employee, err := m.directory.GetEmployeeByID(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return fmt.Sprintf("#%d", id), nil
		}
		return "", err
	}
	return employee.FullName, nil
}

func dayRange(from time.Time, days int) (time.Time, time.Time) {
	return from, from.AddDate(0, 0, days)
}
