package repository

import (
	"context"

	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/domain"
)

const employeeColumns = `id, username, password_hash, full_name, email, role, chat_user_id, is_active, created_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row rowScanner) (*domain.Employee, error) {
	e := &domain.Employee{}
	dst := []any{&e.ID, &e.Username, &e.PasswordHash, &e.FullName, &e.Email, &e.Role, &e.ChatUserID, &e.IsActive, &e.CreatedAt, &e.Version}
	if err := row.Scan(dst...); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *Repository) getEmployee(ctx context.Context, where string, arg any) (*domain.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE ` + where

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	return scanEmployee(r.dbpool.QueryRowContext(ctx, query, arg))
}

func (r *Repository) GetEmployeeByID(ctx context.Context, id int64) (*domain.Employee, error) {
	return r.getEmployee(ctx, "id = $1", id)
}

func (r *Repository) GetEmployeeByUsername(ctx context.Context, username string) (*domain.Employee, error) {
	return r.getEmployee(ctx, "username = $1", username)
}

func (r *Repository) GetEmployeeByChatUserID(ctx context.Context, chatUserID string) (*domain.Employee, error) {
	return r.getEmployee(ctx, "chat_user_id = $1", chatUserID)
}

func (r *Repository) listEmployees(ctx context.Context, where string, args ...any) ([]*domain.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees ` + where + ` ORDER BY id`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	employees := make([]*domain.Employee, 0)
	for rows.Next() {
		employee, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, employee)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return employees, nil
}

func (r *Repository) GetAllEmployees(ctx context.Context) ([]*domain.Employee, error) {
	return r.listEmployees(ctx, "")
}

func (r *Repository) GetActiveEmployees(ctx context.Context) ([]*domain.Employee, error) {
	return r.listEmployees(ctx, "WHERE is_active")
}

func (r *Repository) GetManagers(ctx context.Context) ([]*domain.Employee, error) {
	return r.listEmployees(ctx, "WHERE is_active AND role = $1", domain.RoleManager)
}

func (r *Repository) CreateEmployee(ctx context.Context, employee *domain.Employee) error {
	query := `
		INSERT INTO employees (username, password_hash, full_name, email, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, is_active, created_at, version
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	args := []any{employee.Username, employee.PasswordHash, employee.FullName, employee.Email, employee.Role}
	if err := r.dbpool.QueryRowContext(ctx, query, args...).Scan(&employee.ID, &employee.IsActive, &employee.CreatedAt, &employee.Version); err != nil {
		return err
	}

	return nil
}

// UpdateEmployee 使用乐观锁，版本号不一致时返回 sql.ErrNoRows
func (r *Repository) UpdateEmployee(ctx context.Context, employee *domain.Employee) error {
	query := `
		UPDATE employees
		SET
			password_hash = $1,
			email = $2,
			role = $3,
			is_active = $4,
			version = version + 1
		WHERE id = $5 AND version = $6
		RETURNING username, full_name, chat_user_id, created_at, version
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	args := []any{employee.PasswordHash, employee.Email, employee.Role, employee.IsActive, employee.ID, employee.Version}
	dst := []any{&employee.Username, &employee.FullName, &employee.ChatUserID, &employee.CreatedAt, &employee.Version}
	if err := r.dbpool.QueryRowContext(ctx, query, args...).Scan(dst...); err != nil {
		return err
	}

	return nil
}

// LinkChatUser 将聊天平台的用户 ID 绑定到员工上，同一个聊天用户只能绑定一个员工
func (r *Repository) LinkChatUser(ctx context.Context, employeeID int64, chatUserID string) error {
	query := `
		UPDATE employees SET chat_user_id = $1, version = version + 1 WHERE id = $2
		RETURNING id
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	var id int64
	return r.dbpool.QueryRowContext(ctx, query, chatUserID, employeeID).Scan(&id)
}

func (r *Repository) DeleteEmployee(ctx context.Context, id int64) error {
	query := `
		DELETE FROM employees WHERE id = $1
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	_, err := r.dbpool.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	return nil
}

func (r *Repository) CheckEmailIfExists(ctx context.Context, email string) (bool, error) {
	isExists := false

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	query := `
		SELECT EXISTS (SELECT 1 FROM employees WHERE email = $1)
	`
	if err := r.dbpool.QueryRowContext(ctx, query, email).Scan(&isExists); err != nil {
		return false, err
	}

	return isExists, nil
}
