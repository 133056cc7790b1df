package handler

import (
	"net/http"
	"time"

	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/domain"
)

// 以下接口是聊天对话之外的另一个入口，业务规则全部由审批流程负责

func (h *Handler) CreateExchangeRequest(w http.ResponseWriter, r *http.Request) {
	myInfo := r.Context().Value(MyInfoCtx).(*domain.Employee)

	var req struct {
		ShiftID     int64   `json:"shiftID" validate:"required"`
		ApproverIDs []int64 `json:"approverIDs" validate:"required,min=1,dive,gt=0"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	writeResult(h, w, r, h.manager.CreateExchange(r.Context(), myInfo.ID, req.ShiftID, req.ApproverIDs))
}

func (h *Handler) CreateAdditionRequest(w http.ResponseWriter, r *http.Request) {
	myInfo := r.Context().Value(MyInfoCtx).(*domain.Employee)

	var req struct {
		Date      string           `json:"date" validate:"required,datetime=2006-01-02"`
		StartTime domain.TimeOfDay `json:"startTime"`
		EndTime   domain.TimeOfDay `json:"endTime" validate:"required"`
		TargetIDs []int64          `json:"targetIDs" validate:"required,min=1,dive,gt=0"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	date, err := time.Parse(domain.DateLayout, req.Date)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	writeResult(h, w, r, h.manager.CreateAddition(r.Context(), myInfo.ID, date, req.StartTime, req.EndTime, req.TargetIDs))
}

func (h *Handler) CreateDeletionRequest(w http.ResponseWriter, r *http.Request) {
	myInfo := r.Context().Value(MyInfoCtx).(*domain.Employee)

	var req struct {
		ShiftID int64  `json:"shiftID" validate:"required"`
		Reason  string `json:"reason" validate:"required"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	writeResult(h, w, r, h.manager.CreateDeletion(r.Context(), myInfo.ID, req.ShiftID, req.Reason))
}

func (h *Handler) GetPendingRequests(w http.ResponseWriter, r *http.Request) {
	myInfo := r.Context().Value(MyInfoCtx).(*domain.Employee)
	writeResult(h, w, r, h.manager.PendingFor(r.Context(), myInfo.ID))
}

func (h *Handler) GetExchangeStatus(w http.ResponseWriter, r *http.Request) {
	myInfo := r.Context().Value(MyInfoCtx).(*domain.Employee)
	writeResult(h, w, r, h.manager.OutgoingExchanges(r.Context(), myInfo.ID))
}

func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	myInfo := r.Context().Value(MyInfoCtx).(*domain.Employee)
	id := r.Context().Value(ApprovalRequestIDCtx).(int64)

	res := h.manager.Get(r.Context(), id)
	if res.Success && !visibleTo(res.Data, myInfo) {
		h.errorResponse(w, r, "权限不足")
		return
	}

	writeResult(h, w, r, res)
}

// visibleTo 申请只对申请人、对方和管理者可见
func visibleTo(request *domain.ApprovalRequest, employee *domain.Employee) bool {
	if employee.IsManager() || request.RequesterID == employee.ID {
		return true
	}
	return request.CounterpartyID != nil && *request.CounterpartyID == employee.ID
}

func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	myInfo := r.Context().Value(MyInfoCtx).(*domain.Employee)
	id := r.Context().Value(ApprovalRequestIDCtx).(int64)
	writeResult(h, w, r, h.manager.Approve(r.Context(), id, myInfo.ID))
}

func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	myInfo := r.Context().Value(MyInfoCtx).(*domain.Employee)
	id := r.Context().Value(ApprovalRequestIDCtx).(int64)
	writeResult(h, w, r, h.manager.Reject(r.Context(), id, myInfo.ID))
}

func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	myInfo := r.Context().Value(MyInfoCtx).(*domain.Employee)
	id := r.Context().Value(ApprovalRequestIDCtx).(int64)
	writeResult(h, w, r, h.manager.Cancel(r.Context(), id, myInfo.ID))
}
