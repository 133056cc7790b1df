package conversation

import (
	"fmt"
	"time"

	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/domain"
)

type Flow string

const (
	FlowExchange     Flow = "exchange"
	FlowAddition     Flow = "addition"
	FlowDeletion     Flow = "deletion"
	FlowAuthenticate Flow = "authenticate"
)

type Step string

const (
	StepWaitingDate              Step = "waiting_date"
	StepWaitingTime              Step = "waiting_time"
	StepWaitingShiftSelection    Step = "waiting_shift_selection"
	StepWaitingEmployeeSelection Step = "waiting_employee_selection"
	StepWaitingConfirmation      Step = "waiting_confirmation"
	StepWaitingReason            Step = "waiting_reason"
	StepWaitingEmployeeName      Step = "waiting_employee_name"
)

// State 是某个聊天用户在多步流程中的进度，只能通过下面的构造函数生成，保存前会再调用 Validate
type State struct {
	Flow              Flow             `json:"flow"`
	Step              Step             `json:"step"`
	SelectedDate      string           `json:"selected_date,omitempty"`
	StartTime         domain.TimeOfDay `json:"start_time,omitempty"`
	EndTime           domain.TimeOfDay `json:"end_time,omitempty"`
	ShiftID           int64            `json:"shift_id,omitempty"`
	TargetEmployeeIDs []int64          `json:"target_employee_ids,omitempty"`
}

func WaitingDate(flow Flow) *State {
	return &State{Flow: flow, Step: StepWaitingDate}
}

func WaitingShiftSelection(flow Flow, date time.Time) *State {
	return &State{Flow: flow, Step: StepWaitingShiftSelection, SelectedDate: date.Format(domain.DateLayout)}
}

func WaitingTime(date time.Time) *State {
	return &State{Flow: FlowAddition, Step: StepWaitingTime, SelectedDate: date.Format(domain.DateLayout)}
}

// WaitingEmployeeSelection 用于换班（选定了班次）和加班（选定了时间段）两种流程
func WaitingEmployeeSelection(flow Flow, date time.Time, start, end domain.TimeOfDay, shiftID int64) *State {
	return &State{
		Flow:         flow,
		Step:         StepWaitingEmployeeSelection,
		SelectedDate: date.Format(domain.DateLayout),
		StartTime:    start,
		EndTime:      end,
		ShiftID:      shiftID,
	}
}

func WaitingConfirmation(prev *State, employeeIDs []int64) *State {
	next := *prev
	next.Step = StepWaitingConfirmation
	next.TargetEmployeeIDs = append([]int64(nil), employeeIDs...)
	return &next
}

func WaitingReason(date time.Time, shift *domain.Shift) *State {
	return &State{
		Flow:         FlowDeletion,
		Step:         StepWaitingReason,
		SelectedDate: date.Format(domain.DateLayout),
		StartTime:    shift.StartTime,
		EndTime:      shift.EndTime,
		ShiftID:      shift.ID,
	}
}

func WaitingEmployeeName() *State {
	return &State{Flow: FlowAuthenticate, Step: StepWaitingEmployeeName}
}

// Date 返回 SelectedDate 对应的日期，格式与 domain.Shift.Date 一致
func (s *State) Date() (time.Time, error) {
	return time.Parse(domain.DateLayout, s.SelectedDate)
}

// Validate 检查当前步骤所需的字段是否齐全
func (s *State) Validate() error {
	needDate := func() error {
		if _, err := s.Date(); err != nil {
			return fmt.Errorf("%s/%s 缺少有效的日期: %q", s.Flow, s.Step, s.SelectedDate)
		}
		return nil
	}
	needShift := func() error {
		if s.ShiftID <= 0 {
			return fmt.Errorf("%s/%s 缺少班次", s.Flow, s.Step)
		}
		return nil
	}
	needSpan := func() error {
		if s.EndTime <= s.StartTime {
			return fmt.Errorf("%s/%s 的时间段无效: %s-%s", s.Flow, s.Step, s.StartTime, s.EndTime)
		}
		return nil
	}
	// 换班需要班次，加班需要时间段
	needSelection := func() error {
		if err := needDate(); err != nil {
			return err
		}
		switch s.Flow {
		case FlowExchange:
			return needShift()
		case FlowAddition:
			return needSpan()
		default:
			return fmt.Errorf("%s 流程没有 %s 步骤", s.Flow, s.Step)
		}
	}

	switch s.Step {
	case StepWaitingDate:
		if s.Flow != FlowExchange && s.Flow != FlowAddition && s.Flow != FlowDeletion {
			return fmt.Errorf("%s 流程没有 %s 步骤", s.Flow, s.Step)
		}
		return nil
	case StepWaitingShiftSelection:
		if s.Flow != FlowExchange && s.Flow != FlowDeletion {
			return fmt.Errorf("%s 流程没有 %s 步骤", s.Flow, s.Step)
		}
		return needDate()
	case StepWaitingTime:
		if s.Flow != FlowAddition {
			return fmt.Errorf("%s 流程没有 %s 步骤", s.Flow, s.Step)
		}
		return needDate()
	case StepWaitingEmployeeSelection:
		return needSelection()
	case StepWaitingConfirmation:
		if err := needSelection(); err != nil {
			return err
		}
		if len(s.TargetEmployeeIDs) == 0 {
			return fmt.Errorf("%s/%s 缺少目标员工", s.Flow, s.Step)
		}
		return nil
	case StepWaitingReason:
		if s.Flow != FlowDeletion {
			return fmt.Errorf("%s 流程没有 %s 步骤", s.Flow, s.Step)
		}
		if err := needDate(); err != nil {
			return err
		}
		return needShift()
	case StepWaitingEmployeeName:
		if s.Flow != FlowAuthenticate {
			return fmt.Errorf("%s 流程没有 %s 步骤", s.Flow, s.Step)
		}
		return nil
	default:
		return fmt.Errorf("未知的步骤 %q", s.Step)
	}
}
