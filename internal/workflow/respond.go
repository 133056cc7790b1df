package workflow

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/domain"
	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/interval"
	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/metrics"
)

func alreadyProcessed(status domain.RequestStatus) *Error {
	switch status {
	case domain.RequestStatusApproved:
		return newError(KindAlreadyProcessed, "this request has already been approved")
	case domain.RequestStatusRejected:
		return newError(KindAlreadyProcessed, "this request has already been rejected")
	case domain.RequestStatusCancelled:
		return newError(KindAlreadyProcessed, "this request has already been cancelled")
	default:
		return newError(KindAlreadyProcessed, "this request has already been processed")
	}
}

// CanRespond 判断 actor 是否为申请所指向的审批人：换班和加班由对方本人审批，删班由除申请人以外的任意管理者审批
func CanRespond(request *domain.ApprovalRequest, actor *domain.Employee) bool {
	switch request.Kind {
	case domain.RequestKindExchange, domain.RequestKindAddition:
		return request.CounterpartyID != nil && *request.CounterpartyID == actor.ID
	case domain.RequestKindDeletion:
		return actor.IsManager() && actor.ID != request.RequesterID
	default:
		return false
	}
}

func (m *Manager) loadForResponse(ctx context.Context, requestID, actorID int64) (*domain.ApprovalRequest, error) {
	request, err := m.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	actor, err := m.loadEmployee(ctx, actorID)
	if err != nil {
		var werr *Error
		if errors.As(err, &werr) && werr.Kind == KindNotFound {
			return nil, newError(KindAuthorization, "you are not allowed to respond to this request")
		}
		return nil, err
	}
	if !CanRespond(request, actor) {
		return nil, newError(KindAuthorization, "you are not allowed to respond to this request")
	}

	if request.Status.IsTerminal() {
		return nil, alreadyProcessed(request.Status)
	}

	return request, nil
}

// lostRace 在状态的 CAS 失败后重新读取申请，返回与最新状态对应的错误
func (m *Manager) lostRace(ctx context.Context, requestID int64) error {
	fresh, err := m.store.GetApprovalRequestByID(ctx, requestID)
	if err != nil {
		return alreadyProcessed("")
	}
	return alreadyProcessed(fresh.Status)
}

func (m *Manager) Approve(ctx context.Context, requestID, actorID int64) Result[*domain.ApprovalRequest] {
	request, err := m.approve(ctx, requestID, actorID)
	if err != nil {
		return fail[*domain.ApprovalRequest]("approve", err)
	}
	return succeed("request approved", request)
}

func (m *Manager) approve(ctx context.Context, requestID, actorID int64) (*domain.ApprovalRequest, error) {
	request, err := m.loadForResponse(ctx, requestID, actorID)
	if err != nil {
		return nil, err
	}

	effect, err := m.approvalEffect(ctx, request)
	if err != nil {
		if errors.Is(err, errShiftGone) {
			return nil, m.closeOrphan(ctx, request)
		}
		return nil, err
	}

	siblings, err := m.store.ApplyApproval(ctx, request, effect)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRequestNotPending):
			return nil, m.lostRace(ctx, request.ID)
		case errors.Is(err, domain.ErrShiftGone):
			return nil, m.closeOrphan(ctx, request)
		case errors.Is(err, domain.ErrShiftChanged):
			return nil, newError(KindAlreadyProcessed, "the schedule was changed by another operation, please try again")
		default:
			return nil, err
		}
	}

	metrics.RecordRequestTransition(string(request.Kind), string(request.Status))
	m.notify(ctx, domain.NotificationRequestApproved, request)
	for _, sibling := range siblings {
		metrics.RecordRequestTransition(string(sibling.Kind), string(sibling.Status))
		m.notify(ctx, domain.NotificationRequestRejected, sibling)
	}

	return request, nil
}

var errShiftGone = newError(KindNotFound, "the shift no longer exists")

// closeOrphan 将班次已不存在的申请置为 rejected 并通知申请人，调用方仍然得到 not_found
func (m *Manager) closeOrphan(ctx context.Context, request *domain.ApprovalRequest) error {
	if err := m.store.TransitionApprovalRequest(ctx, request, domain.RequestStatusRejected); err != nil {
		if errors.Is(err, domain.ErrRequestNotPending) {
			return m.lostRace(ctx, request.ID)
		}
		return err
	}

	metrics.RecordRequestTransition(string(request.Kind), string(request.Status))
	m.notify(ctx, domain.NotificationRequestRejected, request)

	return errShiftGone
}

// approvalEffect 根据申请类型计算审批通过时需要执行的班次变更
func (m *Manager) approvalEffect(ctx context.Context, request *domain.ApprovalRequest) (*domain.ApprovalEffect, error) {
	// 班次被删除后申请中的 shift_id 会被置空
	if request.Kind != domain.RequestKindAddition && request.ShiftID == nil {
		return nil, errShiftGone
	}

	switch request.Kind {
	case domain.RequestKindExchange:
		donor, err := m.store.GetShiftByID(ctx, *request.ShiftID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, errShiftGone
			}
			return nil, err
		}

		existing, err := m.store.GetShiftsByEmployeeAndDate(ctx, *request.CounterpartyID, donor.Date)
		if err != nil {
			return nil, err
		}
		plan := interval.Reconcile(existing, interval.Incoming{
			EmployeeID:       *request.CounterpartyID,
			Date:             donor.Date,
			Span:             interval.SpanOf(donor),
			SourceEmployeeID: request.RequesterID,
		})

		return &domain.ApprovalEffect{
			LockedShiftID:  donor.ID,
			DeleteShiftIDs: append([]int64{donor.ID}, plan.Absorbed...),
			UpsertShift:    plan.Upsert,
		}, nil

	case domain.RequestKindAddition:
		existing, err := m.store.GetShiftsByEmployeeAndDate(ctx, *request.CounterpartyID, request.Date)
		if err != nil {
			return nil, err
		}
		plan := interval.Reconcile(existing, interval.Incoming{
			EmployeeID:       *request.CounterpartyID,
			Date:             request.Date,
			Span:             interval.Span{Start: request.StartTime, End: request.EndTime},
			SourceEmployeeID: request.RequesterID,
		})

		return &domain.ApprovalEffect{
			DeleteShiftIDs: plan.Absorbed,
			UpsertShift:    plan.Upsert,
		}, nil

	case domain.RequestKindDeletion:
		return &domain.ApprovalEffect{
			LockedShiftID:  *request.ShiftID,
			DeleteShiftIDs: []int64{*request.ShiftID},
		}, nil

	default:
		return nil, newError(KindValidation, "unknown request kind %q", request.Kind)
	}
}

func (m *Manager) Reject(ctx context.Context, requestID, actorID int64) Result[*domain.ApprovalRequest] {
	request, err := m.reject(ctx, requestID, actorID)
	if err != nil {
		return fail[*domain.ApprovalRequest]("reject", err)
	}
	return succeed("request rejected", request)
}

func (m *Manager) reject(ctx context.Context, requestID, actorID int64) (*domain.ApprovalRequest, error) {
	request, err := m.loadForResponse(ctx, requestID, actorID)
	if err != nil {
		return nil, err
	}

	if err := m.store.TransitionApprovalRequest(ctx, request, domain.RequestStatusRejected); err != nil {
		if errors.Is(err, domain.ErrRequestNotPending) {
			return nil, m.lostRace(ctx, request.ID)
		}
		return nil, err
	}

	metrics.RecordRequestTransition(string(request.Kind), string(request.Status))
	m.notify(ctx, domain.NotificationRequestRejected, request)

	return request, nil
}

// Cancel 撤回一条换班申请，只影响这一行，不影响同一班次发给其他人的申请
func (m *Manager) Cancel(ctx context.Context, requestID, actorID int64) Result[*domain.ApprovalRequest] {
	request, err := m.cancel(ctx, requestID, actorID)
	if err != nil {
		return fail[*domain.ApprovalRequest]("cancel", err)
	}
	return succeed("request cancelled", request)
}

func cancelStateError(status domain.RequestStatus) *Error {
	if status == domain.RequestStatusApproved {
		return newError(KindAuthorization, "cannot cancel an approved request")
	}
	return newError(KindAlreadyProcessed, "already processed")
}

func (m *Manager) cancel(ctx context.Context, requestID, actorID int64) (*domain.ApprovalRequest, error) {
	request, err := m.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Kind != domain.RequestKindExchange {
		return nil, newError(KindValidation, "only exchange requests can be cancelled")
	}
	if request.RequesterID != actorID {
		return nil, newError(KindAuthorization, "only the requester can cancel this request")
	}
	if request.Status.IsTerminal() {
		return nil, cancelStateError(request.Status)
	}

	if err := m.store.TransitionApprovalRequest(ctx, request, domain.RequestStatusCancelled); err != nil {
		if errors.Is(err, domain.ErrRequestNotPending) {
			fresh, ferr := m.store.GetApprovalRequestByID(ctx, request.ID)
			if ferr != nil {
				return nil, newError(KindAlreadyProcessed, "already processed")
			}
			return nil, cancelStateError(fresh.Status)
		}
		return nil, err
	}

	metrics.RecordRequestTransition(string(request.Kind), string(request.Status))
	m.notify(ctx, domain.NotificationRequestCancelled, request)

	return request, nil
}
