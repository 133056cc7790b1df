package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/domain"
	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/interval"
	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/metrics"
)

// Submission 是三种申请共用的创建参数，不同类型只使用其中一部分字段
type Submission struct {
	Kind            domain.RequestKind `json:"kind" validate:"required,oneof=exchange addition deletion"`
	RequesterID     int64              `json:"requesterID" validate:"required"`
	ShiftID         int64              `json:"shiftID" validate:"required_if=Kind exchange,required_if=Kind deletion"`
	Date            time.Time          `json:"date" validate:"required_if=Kind addition"`
	StartTime       domain.TimeOfDay   `json:"startTime"`
	EndTime         domain.TimeOfDay   `json:"endTime" validate:"required_if=Kind addition"`
	CounterpartyIDs []int64            `json:"counterpartyIDs" validate:"dive,gt=0"`
	Reason          string             `json:"reason" validate:"required_if=Kind deletion"`
}

type Submitted struct {
	Requests   []*domain.ApprovalRequest `json:"requests"`
	Advisories []interval.Conflict       `json:"advisories"` // 加班目标中当天已有重叠班次的员工，仅作提示
}

func (m *Manager) CreateExchange(ctx context.Context, requesterID, shiftID int64, approverIDs []int64) Result[*Submitted] {
	return m.Create(ctx, Submission{
		Kind:            domain.RequestKindExchange,
		RequesterID:     requesterID,
		ShiftID:         shiftID,
		CounterpartyIDs: approverIDs,
	})
}

func (m *Manager) CreateAddition(ctx context.Context, requesterID int64, date time.Time, start, end domain.TimeOfDay, targetIDs []int64) Result[*Submitted] {
	return m.Create(ctx, Submission{
		Kind:            domain.RequestKindAddition,
		RequesterID:     requesterID,
		Date:            date,
		StartTime:       start,
		EndTime:         end,
		CounterpartyIDs: targetIDs,
	})
}

func (m *Manager) CreateDeletion(ctx context.Context, requesterID, shiftID int64, reason string) Result[*Submitted] {
	return m.Create(ctx, Submission{
		Kind:        domain.RequestKindDeletion,
		RequesterID: requesterID,
		ShiftID:     shiftID,
		Reason:      reason,
	})
}

// Create 校验并创建申请，换班和加班会为每个对方各生成一行
func (m *Manager) Create(ctx context.Context, sub Submission) Result[*Submitted] {
	submitted, err := m.create(ctx, sub)
	if err != nil {
		return fail[*Submitted]("create", err)
	}

	var msg string
	switch sub.Kind {
	case domain.RequestKindExchange:
		msg = fmt.Sprintf("exchange request sent to %d employee(s)", len(submitted.Requests))
	case domain.RequestKindAddition:
		msg = fmt.Sprintf("addition request sent to %d employee(s)", len(submitted.Requests))
	default:
		msg = "deletion request submitted"
	}

	return succeed(msg, submitted)
}

func (m *Manager) create(ctx context.Context, sub Submission) (*Submitted, error) {
	sub.Reason = strings.TrimSpace(sub.Reason)
	if err := m.validate.Struct(sub); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return nil, newError(KindValidation, "missing required fields: %s", validationErrors[0].Field())
		}
		return nil, err
	}
	if sub.Kind != domain.RequestKindDeletion && len(sub.CounterpartyIDs) == 0 {
		return nil, newError(KindValidation, "missing required fields: CounterpartyIDs")
	}

	requester, err := m.loadEmployee(ctx, sub.RequesterID)
	if err != nil {
		return nil, err
	}

	submitted := &Submitted{Advisories: make([]interval.Conflict, 0)}
	switch sub.Kind {
	case domain.RequestKindExchange:
		submitted.Requests, err = m.buildExchange(ctx, requester, sub)
	case domain.RequestKindAddition:
		submitted.Requests, submitted.Advisories, err = m.buildAddition(ctx, requester, sub)
	case domain.RequestKindDeletion:
		submitted.Requests, err = m.buildDeletion(ctx, requester, sub)
	}
	if err != nil {
		return nil, err
	}

	if err := m.store.CreateApprovalRequests(ctx, submitted.Requests); err != nil {
		if errors.Is(err, domain.ErrDuplicateRequest) {
			return nil, newError(KindDuplicateRequest, "a pending request already exists for this shift")
		}
		return nil, err
	}

	for _, request := range submitted.Requests {
		metrics.RecordRequestTransition(string(request.Kind), string(request.Status))
		m.notify(ctx, domain.NotificationRequestCreated, request)
	}

	return submitted, nil
}

// counterparties 去重并检查每个对方都是在职员工
func (m *Manager) counterparties(ctx context.Context, requester *domain.Employee, ids []int64) ([]*domain.Employee, error) {
	seen := make(map[int64]bool, len(ids))
	employees := make([]*domain.Employee, 0, len(ids))

	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		if id == requester.ID {
			return nil, newError(KindValidation, "you cannot send a request to yourself")
		}
		employee, err := m.loadEmployee(ctx, id)
		if err != nil {
			return nil, err
		}
		if !employee.IsActive {
			return nil, newError(KindValidation, "%s is no longer active", employee.FullName)
		}
		employees = append(employees, employee)
	}

	return employees, nil
}

func (m *Manager) buildExchange(ctx context.Context, requester *domain.Employee, sub Submission) ([]*domain.ApprovalRequest, error) {
	shift, err := m.loadShift(ctx, sub.ShiftID)
	if err != nil {
		return nil, err
	}
	if shift.EmployeeID != requester.ID {
		return nil, newError(KindAuthorization, "you can only exchange your own shifts")
	}
	if err := m.checkDate(shift.Date); err != nil {
		return nil, err
	}

	approvers, err := m.counterparties(ctx, requester, sub.CounterpartyIDs)
	if err != nil {
		return nil, err
	}

	requests := make([]*domain.ApprovalRequest, 0, len(approvers))
	for _, approver := range approvers {
		exists, err := m.store.ExistsPendingRequest(ctx, domain.RequestKindExchange, shift.ID, &approver.ID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, newError(KindDuplicateRequest, "a pending exchange request for this shift has already been sent to %s", approver.FullName)
		}

		approverID := approver.ID
		shiftID := shift.ID
		requests = append(requests, &domain.ApprovalRequest{
			Kind:           domain.RequestKindExchange,
			RequesterID:    requester.ID,
			CounterpartyID: &approverID,
			ShiftID:        &shiftID,
			Date:           shift.Date,
			StartTime:      shift.StartTime,
			EndTime:        shift.EndTime,
			Status:         domain.RequestStatusPending,
		})
	}

	return requests, nil
}

func (m *Manager) buildAddition(ctx context.Context, requester *domain.Employee, sub Submission) ([]*domain.ApprovalRequest, []interval.Conflict, error) {
	if !requester.IsManager() {
		return nil, nil, newError(KindAuthorization, "only managers can request additions")
	}

	y, mo, d := sub.Date.Date()
	date := time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
	if err := m.checkDate(date); err != nil {
		return nil, nil, err
	}
	span := interval.Span{Start: sub.StartTime, End: sub.EndTime}
	if !span.Valid() {
		return nil, nil, newError(KindValidation, "end time must be after start time")
	}

	targets, err := m.counterparties(ctx, requester, sub.CounterpartyIDs)
	if err != nil {
		return nil, nil, err
	}

	ids := make([]int64, 0, len(targets))
	for _, target := range targets {
		ids = append(ids, target.ID)
	}

	// 已有重叠班次不阻止申请，审批通过时由合并逻辑处理
	partition, err := m.detector.Partition(ctx, ids, date, span)
	if err != nil {
		return nil, nil, err
	}

	requests := make([]*domain.ApprovalRequest, 0, len(targets))
	for _, id := range ids {
		targetID := id
		requests = append(requests, &domain.ApprovalRequest{
			Kind:           domain.RequestKindAddition,
			RequesterID:    requester.ID,
			CounterpartyID: &targetID,
			Date:           date,
			StartTime:      span.Start,
			EndTime:        span.End,
			Status:         domain.RequestStatusPending,
		})
	}

	return requests, partition.Conflicting, nil
}

func (m *Manager) buildDeletion(ctx context.Context, requester *domain.Employee, sub Submission) ([]*domain.ApprovalRequest, error) {
	shift, err := m.loadShift(ctx, sub.ShiftID)
	if err != nil {
		return nil, err
	}
	if shift.EmployeeID != requester.ID {
		return nil, newError(KindAuthorization, "you can only delete your own shifts")
	}
	if err := m.checkDate(shift.Date); err != nil {
		return nil, err
	}

	exists, err := m.store.ExistsPendingRequest(ctx, domain.RequestKindDeletion, shift.ID, nil)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, newError(KindDuplicateRequest, "a pending deletion request for this shift already exists")
	}

	shiftID := shift.ID
	return []*domain.ApprovalRequest{{
		Kind:        domain.RequestKindDeletion,
		RequesterID: requester.ID,
		ShiftID:     &shiftID,
		Date:        shift.Date,
		StartTime:   shift.StartTime,
		EndTime:     shift.EndTime,
		Reason:      sub.Reason,
		Status:      domain.RequestStatusPending,
	}}, nil
}
