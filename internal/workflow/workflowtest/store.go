// Package workflowtest 提供审批流程测试用的内存存储和通知记录器
package workflowtest

import (
	"context"
	"database/sql"
	"slices"
	"sync"
	"time"

	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/domain"
)

// Store 在内存中模拟 repository 的行为，包括事务的原子性和状态的 CAS
type Store struct {
	mu        sync.Mutex
	employees map[int64]*domain.Employee
	shifts    map[int64]*domain.Shift
	requests  map[int64]*domain.ApprovalRequest
	nextID    int64

	Now func() time.Time
	// FailApply 不为空时 ApplyApproval 在校验通过后返回该错误且不做任何修改
	FailApply error
}

func NewStore() *Store {
	return &Store{
		employees: make(map[int64]*domain.Employee),
		shifts:    make(map[int64]*domain.Shift),
		requests:  make(map[int64]*domain.ApprovalRequest),
		nextID:    100,
		Now:       time.Now,
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func copyShift(shift *domain.Shift) *domain.Shift {
	c := *shift
	if shift.SourceEmployeeID != nil {
		source := *shift.SourceEmployeeID
		c.SourceEmployeeID = &source
	}
	return &c
}

func copyRequest(request *domain.ApprovalRequest) *domain.ApprovalRequest {
	c := *request
	if request.CounterpartyID != nil {
		id := *request.CounterpartyID
		c.CounterpartyID = &id
	}
	if request.ShiftID != nil {
		id := *request.ShiftID
		c.ShiftID = &id
	}
	if request.RespondedAt != nil {
		at := *request.RespondedAt
		c.RespondedAt = &at
	}
	return &c
}

func copyEmployee(employee *domain.Employee) *domain.Employee {
	c := *employee
	if employee.ChatUserID != nil {
		chatID := *employee.ChatUserID
		c.ChatUserID = &chatID
	}
	return &c
}

// AddEmployee 插入员工，ID 为 0 时自动分配
func (s *Store) AddEmployee(e *domain.Employee) *domain.Employee {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == 0 {
		e.ID = s.id()
	}
	if e.Role == "" {
		e.Role = domain.RoleEmployee
	}
	e.IsActive = true
	s.employees[e.ID] = copyEmployee(e)
	return e
}

// AddShift 直接插入班次，不做重叠检查
func (s *Store) AddShift(owner int64, date time.Time, start, end string) *domain.Shift {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift := &domain.Shift{
		ID:         s.id(),
		EmployeeID: owner,
		Date:       date,
		StartTime:  domain.MustParseTimeOfDay(start),
		EndTime:    domain.MustParseTimeOfDay(end),
		CreatedAt:  s.Now(),
		Version:    1,
	}
	s.shifts[shift.ID] = copyShift(shift)
	return shift
}

// deleteShift 删除班次并像外键 ON DELETE SET NULL 一样清空引用它的申请的 shift_id
func (s *Store) deleteShift(id int64) {
	delete(s.shifts, id)
	for _, r := range s.requests {
		if r.ShiftID != nil && *r.ShiftID == id {
			r.ShiftID = nil
		}
	}
}

// DropShift 直接删除班次，不改变任何申请的状态
func (s *Store) DropShift(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteShift(id)
}

// ShiftsOf 返回某员工的全部班次，按日期和开始时间排序
func (s *Store) ShiftsOf(owner int64) []*domain.Shift {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*domain.Shift, 0)
	for _, shift := range s.shifts {
		if shift.EmployeeID == owner {
			result = append(result, copyShift(shift))
		}
	}
	sortShifts(result)
	return result
}

func (s *Store) Request(id int64) *domain.ApprovalRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	if request, ok := s.requests[id]; ok {
		return copyRequest(request)
	}
	return nil
}

func (s *Store) Requests() []*domain.ApprovalRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*domain.ApprovalRequest, 0, len(s.requests))
	for _, request := range s.requests {
		result = append(result, copyRequest(request))
	}
	slices.SortFunc(result, func(a, b *domain.ApprovalRequest) int { return int(a.ID - b.ID) })
	return result
}

func sortShifts(shifts []*domain.Shift) {
	slices.SortFunc(shifts, func(a, b *domain.Shift) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return int(a.StartTime) - int(b.StartTime)
	})
}

func (s *Store) GetEmployeeByID(_ context.Context, id int64) (*domain.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.employees[id]; ok {
		return copyEmployee(e), nil
	}
	return nil, sql.ErrNoRows
}

func (s *Store) GetEmployeeByChatUserID(_ context.Context, chatUserID string) (*domain.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.employees {
		if e.ChatUserID != nil && *e.ChatUserID == chatUserID {
			return copyEmployee(e), nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *Store) GetActiveEmployees(_ context.Context) ([]*domain.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*domain.Employee, 0, len(s.employees))
	for _, e := range s.employees {
		if e.IsActive {
			result = append(result, copyEmployee(e))
		}
	}
	slices.SortFunc(result, func(a, b *domain.Employee) int { return int(a.ID - b.ID) })
	return result, nil
}

func (s *Store) LinkChatUser(_ context.Context, employeeID int64, chatUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.employees[employeeID]
	if !ok {
		return sql.ErrNoRows
	}
	e.ChatUserID = &chatUserID
	return nil
}

func (s *Store) GetShiftByID(_ context.Context, id int64) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if shift, ok := s.shifts[id]; ok {
		return copyShift(shift), nil
	}
	return nil, sql.ErrNoRows
}

func (s *Store) GetShiftsByEmployeeAndDate(_ context.Context, employeeID int64, date time.Time) ([]*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*domain.Shift, 0)
	for _, shift := range s.shifts {
		if shift.EmployeeID == employeeID && shift.Date.Equal(date) {
			result = append(result, copyShift(shift))
		}
	}
	sortShifts(result)
	return result, nil
}

func (s *Store) GetShiftsBetween(_ context.Context, employeeID *int64, from, to time.Time) ([]*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*domain.Shift, 0)
	for _, shift := range s.shifts {
		if employeeID != nil && shift.EmployeeID != *employeeID {
			continue
		}
		if shift.Date.Before(from) || shift.Date.After(to) {
			continue
		}
		result = append(result, copyShift(shift))
	}
	sortShifts(result)
	return result, nil
}

func (s *Store) CreateApprovalRequests(_ context.Context, requests []*domain.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 模拟数据库中 pending 申请的唯一索引
	for _, request := range requests {
		if s.existsPending(request.Kind, request.ShiftID, request.CounterpartyID) {
			return domain.ErrDuplicateRequest
		}
	}

	for _, request := range requests {
		request.ID = s.id()
		request.CreatedAt = s.Now()
		request.Version = 1
		s.requests[request.ID] = copyRequest(request)
	}
	return nil
}

func (s *Store) GetApprovalRequestByID(_ context.Context, id int64) (*domain.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if request, ok := s.requests[id]; ok {
		return copyRequest(request), nil
	}
	return nil, sql.ErrNoRows
}

func (s *Store) existsPending(kind domain.RequestKind, shiftID *int64, counterpartyID *int64) bool {
	if kind == domain.RequestKindAddition || shiftID == nil {
		return false
	}
	for _, r := range s.requests {
		if r.Kind != kind || r.Status != domain.RequestStatusPending || r.ShiftID == nil || *r.ShiftID != *shiftID {
			continue
		}
		if kind == domain.RequestKindDeletion {
			return true
		}
		if counterpartyID != nil && r.CounterpartyID != nil && *r.CounterpartyID == *counterpartyID {
			return true
		}
	}
	return false
}

func (s *Store) ExistsPendingRequest(_ context.Context, kind domain.RequestKind, shiftID int64, counterpartyID *int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.existsPending(kind, &shiftID, counterpartyID), nil
}

func (s *Store) filterRequests(keep func(*domain.ApprovalRequest) bool) []*domain.ApprovalRequest {
	result := make([]*domain.ApprovalRequest, 0)
	for _, r := range s.requests {
		if keep(r) {
			result = append(result, copyRequest(r))
		}
	}
	slices.SortFunc(result, func(a, b *domain.ApprovalRequest) int { return int(a.ID - b.ID) })
	return result
}

func (s *Store) GetPendingRequestsByCounterparty(_ context.Context, employeeID int64) ([]*domain.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.filterRequests(func(r *domain.ApprovalRequest) bool {
		return r.Status == domain.RequestStatusPending && r.CounterpartyID != nil && *r.CounterpartyID == employeeID
	}), nil
}

func (s *Store) GetPendingRequestsByKind(_ context.Context, kind domain.RequestKind) ([]*domain.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.filterRequests(func(r *domain.ApprovalRequest) bool {
		return r.Status == domain.RequestStatusPending && r.Kind == kind
	}), nil
}

func (s *Store) GetApprovalRequestsByRequester(_ context.Context, requesterID int64, kind domain.RequestKind) ([]*domain.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.filterRequests(func(r *domain.ApprovalRequest) bool {
		return r.RequesterID == requesterID && r.Kind == kind
	}), nil
}

// ApplyApproval 先完成全部检查再修改数据，任何一步失败都不会留下部分修改
func (s *Store) ApplyApproval(_ context.Context, request *domain.ApprovalRequest, effect *domain.ApprovalEffect) ([]*domain.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if effect.LockedShiftID != 0 {
		if _, ok := s.shifts[effect.LockedShiftID]; !ok {
			return nil, domain.ErrShiftGone
		}
	}

	stored, ok := s.requests[request.ID]
	if !ok || stored.Status != domain.RequestStatusPending {
		return nil, domain.ErrRequestNotPending
	}

	for _, id := range effect.DeleteShiftIDs {
		if _, ok := s.shifts[id]; !ok {
			return nil, domain.ErrShiftChanged
		}
	}
	if effect.UpsertShift != nil && effect.UpsertShift.ID != 0 {
		current, ok := s.shifts[effect.UpsertShift.ID]
		if !ok || current.Version != effect.UpsertShift.Version {
			return nil, domain.ErrShiftChanged
		}
	}

	if s.FailApply != nil {
		return nil, s.FailApply
	}

	now := s.Now()
	stored.Status = domain.RequestStatusApproved
	stored.RespondedAt = &now
	stored.Version++

	siblings := make([]*domain.ApprovalRequest, 0)
	for _, r := range s.requests {
		if r.ID == stored.ID || r.Status != domain.RequestStatusPending || r.ShiftID == nil {
			continue
		}
		if !slices.Contains(effect.DeleteShiftIDs, *r.ShiftID) {
			continue
		}
		r.Status = domain.RequestStatusRejected
		r.RespondedAt = &now
		r.Version++
		siblings = append(siblings, copyRequest(r))
	}

	for _, id := range effect.DeleteShiftIDs {
		s.deleteShift(id)
	}

	if effect.UpsertShift != nil {
		shift := copyShift(effect.UpsertShift)
		if shift.ID == 0 {
			shift.ID = s.id()
			shift.CreatedAt = now
			shift.Version = 1
		} else {
			shift.Version++
		}
		s.shifts[shift.ID] = shift
		effect.UpsertShift.ID = shift.ID
		effect.UpsertShift.Version = shift.Version
	}

	request.Status = stored.Status
	request.RespondedAt = stored.RespondedAt
	request.Version = stored.Version

	slices.SortFunc(siblings, func(a, b *domain.ApprovalRequest) int { return int(a.ID - b.ID) })
	return siblings, nil
}

func (s *Store) TransitionApprovalRequest(_ context.Context, request *domain.ApprovalRequest, to domain.RequestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.requests[request.ID]
	if !ok || stored.Status != domain.RequestStatusPending {
		return domain.ErrRequestNotPending
	}

	now := s.Now()
	stored.Status = to
	stored.RespondedAt = &now
	stored.Version++

	request.Status = stored.Status
	request.RespondedAt = stored.RespondedAt
	request.Version = stored.Version
	return nil
}
