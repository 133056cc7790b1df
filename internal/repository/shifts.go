package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/domain"
)

const shiftColumns = `id, employee_id, date, start_time, end_time, modified, source_employee_id, created_at, version`

// ErrShiftOverlap 表示写入的班次与同一员工当天的其他班次重叠，由 shifts_no_overlap 约束保证
var ErrShiftOverlap = errors.New("班次与已有班次重叠")

func scanShift(row rowScanner) (*domain.Shift, error) {
	s := &domain.Shift{}
	dst := []any{&s.ID, &s.EmployeeID, &s.Date, &s.StartTime, &s.EndTime, &s.Modified, &s.SourceEmployeeID, &s.CreatedAt, &s.Version}
	if err := row.Scan(dst...); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *Repository) GetShiftByID(ctx context.Context, id int64) (*domain.Shift, error) {
	query := `SELECT ` + shiftColumns + ` FROM shifts WHERE id = $1`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	return scanShift(r.dbpool.QueryRowContext(ctx, query, id))
}

func (r *Repository) listShifts(ctx context.Context, where string, args ...any) ([]*domain.Shift, error) {
	query := `SELECT ` + shiftColumns + ` FROM shifts WHERE ` + where + ` ORDER BY date, start_time, employee_id`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shifts := make([]*domain.Shift, 0)
	for rows.Next() {
		shift, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, shift)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return shifts, nil
}

func (r *Repository) GetShiftsByEmployeeAndDate(ctx context.Context, employeeID int64, date time.Time) ([]*domain.Shift, error) {
	return r.listShifts(ctx, "employee_id = $1 AND date = $2", employeeID, date)
}

// GetShiftsBetween 返回 [from, to] 之间的班次，employeeID 为 nil 时返回所有员工的
func (r *Repository) GetShiftsBetween(ctx context.Context, employeeID *int64, from, to time.Time) ([]*domain.Shift, error) {
	if employeeID == nil {
		return r.listShifts(ctx, "date BETWEEN $1 AND $2", from, to)
	}
	return r.listShifts(ctx, "date BETWEEN $1 AND $2 AND employee_id = $3", from, to, *employeeID)
}

func (r *Repository) CreateShift(ctx context.Context, shift *domain.Shift) error {
	query := `
		INSERT INTO shifts (employee_id, date, start_time, end_time, modified, source_employee_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, version
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	args := []any{shift.EmployeeID, shift.Date, shift.StartTime, shift.EndTime, shift.Modified, shift.SourceEmployeeID}
	if err := r.dbpool.QueryRowContext(ctx, query, args...).Scan(&shift.ID, &shift.CreatedAt, &shift.Version); err != nil {
		if violates(err, "shifts_no_overlap") {
			return ErrShiftOverlap
		}
		return err
	}

	return nil
}

// DeleteShift 删除班次，并在同一个事务中拒绝所有引用该班次的待处理申请，返回被拒绝的申请
func (r *Repository) DeleteShift(ctx context.Context, id int64) ([]*domain.ApprovalRequest, error) {
	ctx, cancel := r.transactionContext(ctx)
	defer cancel()

	tx, err := r.dbpool.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rejectQuery := `
		UPDATE approval_requests
		SET status = 'rejected', responded_at = NOW(), version = version + 1
		WHERE shift_id = $1 AND status = 'pending'
		RETURNING ` + approvalRequestColumns
	rows, err := tx.QueryContext(ctx, rejectQuery, id)
	if err != nil {
		return nil, err
	}
	rejected, err := scanApprovalRequests(rows)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM shifts WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return rejected, nil
}
