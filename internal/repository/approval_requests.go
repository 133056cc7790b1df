package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/domain"
)

const approvalRequestColumns = `id, kind, requester_id, counterparty_id, shift_id, date, start_time, end_time, reason, status, created_at, responded_at, version`

func scanApprovalRequest(row rowScanner) (*domain.ApprovalRequest, error) {
	r := &domain.ApprovalRequest{}
	dst := []any{
		&r.ID,
		&r.Kind,
		&r.RequesterID,
		&r.CounterpartyID,
		&r.ShiftID,
		&r.Date,
		&r.StartTime,
		&r.EndTime,
		&r.Reason,
		&r.Status,
		&r.CreatedAt,
		&r.RespondedAt,
		&r.Version,
	}
	if err := row.Scan(dst...); err != nil {
		return nil, err
	}
	return r, nil
}

func scanApprovalRequests(rows *sql.Rows) ([]*domain.ApprovalRequest, error) {
	defer rows.Close()

	requests := make([]*domain.ApprovalRequest, 0)
	for rows.Next() {
		request, err := scanApprovalRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return requests, nil
}

// CreateApprovalRequests 在一个事务中插入 fan-out 出来的所有申请，任何一行违反待处理唯一索引时全部回滚
func (r *Repository) CreateApprovalRequests(ctx context.Context, requests []*domain.ApprovalRequest) error {
	ctx, cancel := r.transactionContext(ctx)
	defer cancel()

	tx, err := r.dbpool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		INSERT INTO approval_requests (kind, requester_id, counterparty_id, shift_id, date, start_time, end_time, reason, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, version
	`
	for _, request := range requests {
		args := []any{
			request.Kind,
			request.RequesterID,
			request.CounterpartyID,
			request.ShiftID,
			request.Date,
			request.StartTime,
			request.EndTime,
			request.Reason,
			request.Status,
		}
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&request.ID, &request.CreatedAt, &request.Version); err != nil {
			if violates(err, "approval_requests_pending_unique") || violates(err, "approval_requests_pending_deletion_unique") {
				return domain.ErrDuplicateRequest
			}
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	return nil
}

func (r *Repository) GetApprovalRequestByID(ctx context.Context, id int64) (*domain.ApprovalRequest, error) {
	query := `SELECT ` + approvalRequestColumns + ` FROM approval_requests WHERE id = $1`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	return scanApprovalRequest(r.dbpool.QueryRowContext(ctx, query, id))
}

func (r *Repository) ExistsPendingRequest(ctx context.Context, kind domain.RequestKind, shiftID int64, counterpartyID *int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM approval_requests
			WHERE kind = $1 AND shift_id = $2 AND status = 'pending'
			AND ($3::BIGINT IS NULL OR counterparty_id = $3)
		)
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	exists := false
	if err := r.dbpool.QueryRowContext(ctx, query, kind, shiftID, counterpartyID).Scan(&exists); err != nil {
		return false, err
	}

	return exists, nil
}

func (r *Repository) listApprovalRequests(ctx context.Context, where string, args ...any) ([]*domain.ApprovalRequest, error) {
	query := `SELECT ` + approvalRequestColumns + ` FROM approval_requests WHERE ` + where + ` ORDER BY created_at, id`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return scanApprovalRequests(rows)
}

func (r *Repository) GetPendingRequestsByCounterparty(ctx context.Context, employeeID int64) ([]*domain.ApprovalRequest, error) {
	return r.listApprovalRequests(ctx, "counterparty_id = $1 AND status = 'pending'", employeeID)
}

func (r *Repository) GetPendingRequestsByKind(ctx context.Context, kind domain.RequestKind) ([]*domain.ApprovalRequest, error) {
	return r.listApprovalRequests(ctx, "kind = $1 AND status = 'pending'", kind)
}

func (r *Repository) GetApprovalRequestsByRequester(ctx context.Context, requesterID int64, kind domain.RequestKind) ([]*domain.ApprovalRequest, error) {
	return r.listApprovalRequests(ctx, "requester_id = $1 AND kind = $2", requesterID, kind)
}

// ApplyApproval 在一个事务中依次完成：锁定班次、CAS 修改申请状态、拒绝引用待删班次的其他申请、删除班次、写入合并后的班次。
// 任何一步失败都会回滚，调用方不会看到部分完成的修改。
func (r *Repository) ApplyApproval(ctx context.Context, request *domain.ApprovalRequest, effect *domain.ApprovalEffect) ([]*domain.ApprovalRequest, error) {
	ctx, cancel := r.transactionContext(ctx)
	defer cancel()

	tx, err := r.dbpool.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// 锁住原班次，使并发审批同一班次的事务在这里排队
	if effect.LockedShiftID != 0 {
		var id int64
		if err := tx.QueryRowContext(ctx, `SELECT id FROM shifts WHERE id = $1 FOR UPDATE`, effect.LockedShiftID).Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, domain.ErrShiftGone
			}
			return nil, err
		}
	}

	var respondedAt time.Time
	var version int32
	casQuery := `
		UPDATE approval_requests
		SET status = 'approved', responded_at = NOW(), version = version + 1
		WHERE id = $1 AND status = 'pending'
		RETURNING responded_at, version
	`
	if err := tx.QueryRowContext(ctx, casQuery, request.ID).Scan(&respondedAt, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRequestNotPending
		}
		return nil, err
	}

	// 班次删除前先拒绝所有引用这些班次的待处理申请，否则 shift_id 会被置空而申请永远停在 pending
	siblings := make([]*domain.ApprovalRequest, 0)
	if len(effect.DeleteShiftIDs) > 0 {
		siblingQuery := `
			UPDATE approval_requests
			SET status = 'rejected', responded_at = NOW(), version = version + 1
			WHERE shift_id = ANY($1) AND status = 'pending' AND id <> $2
			RETURNING ` + approvalRequestColumns
		rows, err := tx.QueryContext(ctx, siblingQuery, effect.DeleteShiftIDs, request.ID)
		if err != nil {
			return nil, err
		}
		if siblings, err = scanApprovalRequests(rows); err != nil {
			return nil, err
		}
	}

	for _, id := range effect.DeleteShiftIDs {
		res, err := tx.ExecContext(ctx, `DELETE FROM shifts WHERE id = $1`, id)
		if err != nil {
			return nil, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n != 1 {
			return nil, domain.ErrShiftChanged
		}
	}

	if shift := effect.UpsertShift; shift != nil {
		var err error
		if shift.ID == 0 {
			insertQuery := `
				INSERT INTO shifts (employee_id, date, start_time, end_time, modified, source_employee_id)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING id, created_at, version
			`
			args := []any{shift.EmployeeID, shift.Date, shift.StartTime, shift.EndTime, shift.Modified, shift.SourceEmployeeID}
			err = tx.QueryRowContext(ctx, insertQuery, args...).Scan(&shift.ID, &shift.CreatedAt, &shift.Version)
		} else {
			updateQuery := `
				UPDATE shifts
				SET start_time = $1, end_time = $2, modified = $3, source_employee_id = $4, version = version + 1
				WHERE id = $5 AND version = $6
				RETURNING version
			`
			args := []any{shift.StartTime, shift.EndTime, shift.Modified, shift.SourceEmployeeID, shift.ID, shift.Version}
			err = tx.QueryRowContext(ctx, updateQuery, args...).Scan(&shift.Version)
		}
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) || violates(err, "shifts_no_overlap") {
				return nil, domain.ErrShiftChanged
			}
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	request.Status = domain.RequestStatusApproved
	request.RespondedAt = &respondedAt
	request.Version = version

	return siblings, nil
}

// TransitionApprovalRequest 只在申请仍为 pending 时修改状态，用于拒绝和撤回
func (r *Repository) TransitionApprovalRequest(ctx context.Context, request *domain.ApprovalRequest, to domain.RequestStatus) error {
	query := `
		UPDATE approval_requests
		SET status = $1, responded_at = NOW(), version = version + 1
		WHERE id = $2 AND status = 'pending'
		RETURNING responded_at, version
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	var respondedAt time.Time
	if err := r.dbpool.QueryRowContext(ctx, query, to, request.ID).Scan(&respondedAt, &request.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrRequestNotPending
		}
		return err
	}

	request.Status = to
	request.RespondedAt = &respondedAt

	return nil
}
