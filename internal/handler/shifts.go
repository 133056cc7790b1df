package handler

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/domain"
	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/interval"
	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/repository"
)

func parseDateParam(value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	return time.Parse(domain.DateLayout, value)
}

// GetShifts 返回 [from, to] 之间的班次，默认从今天开始 lookahead 天，可以用 employeeID 过滤
func (h *Handler) GetShifts(w http.ResponseWriter, r *http.Request) {
	today := h.manager.Today()
	query := r.URL.Query()

	from, err := parseDateParam(query.Get("from"), today)
	if err != nil {
		h.errorResponse(w, r, "开始日期格式错误，应为 YYYY-MM-DD")
		return
	}
	to, err := parseDateParam(query.Get("to"), from.AddDate(0, 0, h.config.Schedule.LookaheadDays))
	if err != nil {
		h.errorResponse(w, r, "结束日期格式错误，应为 YYYY-MM-DD")
		return
	}
	if to.Before(from) {
		h.errorResponse(w, r, "结束日期不能早于开始日期")
		return
	}

	var employeeID *int64
	if v := query.Get("employeeID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			h.errorResponse(w, r, "员工ID无效")
			return
		}
		employeeID = &id
	}

	shifts, err := h.repository.GetShiftsBetween(r.Context(), employeeID, from, to)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取班次成功", shifts)
}

// CreateShift 由管理者直接排班，不经过审批，但仍然不允许与已有班次重叠
func (h *Handler) CreateShift(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EmployeeID int64            `json:"employeeID" validate:"required"`
		Date       string           `json:"date" validate:"required,datetime=2006-01-02"`
		StartTime  domain.TimeOfDay `json:"startTime"`
		EndTime    domain.TimeOfDay `json:"endTime" validate:"required,gtfield=StartTime"`
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
	if date.Before(h.manager.Today()) {
		h.errorResponse(w, r, "不能为过去的日期排班")
		return
	}

	employee, err := h.repository.GetEmployeeByID(r.Context(), req.EmployeeID)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			h.errorResponse(w, r, "员工不存在")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}
	if !employee.IsActive {
		h.errorResponse(w, r, "该员工已离职")
		return
	}

	span := interval.Span{Start: req.StartTime, End: req.EndTime}
	overlaps, err := h.manager.Detector().Overlaps(r.Context(), employee.ID, date, span, 0)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}
	if overlaps {
		h.errorResponse(w, r, "班次与已有班次重叠")
		return
	}

	shift := &domain.Shift{
		EmployeeID: employee.ID,
		Date:       date,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
	}
	if err := h.repository.CreateShift(r.Context(), shift); err != nil {
		switch {
		case errors.Is(err, repository.ErrShiftOverlap):
			// 检查之后被并发插入了重叠的班次
			h.errorResponse(w, r, "班次与已有班次重叠")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	h.successResponse(w, r, "创建班次成功", shift)
}

func (h *Handler) DeleteShift(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.errorResponse(w, r, "班次ID无效")
		return
	}

	rejected, err := h.repository.DeleteShift(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			h.errorResponse(w, r, "班次不存在")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	for _, request := range rejected {
		n := domain.Notification{Event: domain.NotificationRequestRejected, Request: request}
		if err := h.publisher.Notify(r.Context(), n); err != nil {
			slog.Warn("通知发送失败", "requestID", request.ID, "error", err)
		}
	}

	h.successResponse(w, r, "删除班次成功", nil)
}
