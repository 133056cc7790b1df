package workflow

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/domain"
	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/interval"
	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/metrics"
)

type Store interface {
	interval.Store

	GetShiftByID(ctx context.Context, id int64) (*domain.Shift, error)

	CreateApprovalRequests(ctx context.Context, requests []*domain.ApprovalRequest) error
	GetApprovalRequestByID(ctx context.Context, id int64) (*domain.ApprovalRequest, error)
	ExistsPendingRequest(ctx context.Context, kind domain.RequestKind, shiftID int64, counterpartyID *int64) (bool, error)
	GetPendingRequestsByCounterparty(ctx context.Context, employeeID int64) ([]*domain.ApprovalRequest, error)
	GetPendingRequestsByKind(ctx context.Context, kind domain.RequestKind) ([]*domain.ApprovalRequest, error)
	GetApprovalRequestsByRequester(ctx context.Context, requesterID int64, kind domain.RequestKind) ([]*domain.ApprovalRequest, error)

	// ApplyApproval 在同一个事务中将申请置为 approved 并执行 effect，返回因班次被删除而连带拒绝的其他待处理申请
	ApplyApproval(ctx context.Context, request *domain.ApprovalRequest, effect *domain.ApprovalEffect) ([]*domain.ApprovalRequest, error)
	// TransitionApprovalRequest 只有在申请仍为 pending 时才会修改状态，否则返回 domain.ErrRequestNotPending
	TransitionApprovalRequest(ctx context.Context, request *domain.ApprovalRequest, to domain.RequestStatus) error
}

// Notifier 发送申请状态变化的通知，失败时只记录日志
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

type Manager struct {
	store    Store
	detector *interval.Detector
	notifier Notifier
	validate *validator.Validate
	location *time.Location
	now      func() time.Time
}

func NewManager(store Store, notifier Notifier, location *time.Location) *Manager {
	return &Manager{
		store:    store,
		detector: interval.NewDetector(store),
		notifier: notifier,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		location: location,
		now:      time.Now,
	}
}

// WithClock 替换获取当前时间的函数，主要用于测试
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) Today() time.Time {
	return domain.DateOf(m.now(), m.location)
}

func (m *Manager) Detector() *interval.Detector {
	return m.detector
}

func (m *Manager) checkDate(date time.Time) error {
	if date.Before(m.Today()) {
		return newError(KindValidation, "past date not allowed")
	}
	return nil
}

func (m *Manager) loadShift(ctx context.Context, id int64) (*domain.Shift, error) {
	shift, err := m.store.GetShiftByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, newError(KindNotFound, "shift not found")
		}
		return nil, err
	}
	return shift, nil
}

func (m *Manager) loadEmployee(ctx context.Context, id int64) (*domain.Employee, error) {
	employee, err := m.store.GetEmployeeByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, newError(KindNotFound, "employee %d not found", id)
		}
		return nil, err
	}
	return employee, nil
}

func (m *Manager) loadRequest(ctx context.Context, id int64) (*domain.ApprovalRequest, error) {
	request, err := m.store.GetApprovalRequestByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, newError(KindNotFound, "request not found")
		}
		return nil, err
	}
	return request, nil
}

func (m *Manager) notify(ctx context.Context, event domain.NotificationEvent, request *domain.ApprovalRequest) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(ctx, domain.Notification{Event: event, Request: request}); err != nil {
		metrics.RecordNotificationFailure(string(event))
		slog.Warn("通知发送失败", "event", event, "requestID", request.ID, "error", err)
	}
}
