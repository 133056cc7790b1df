// Package seed 从排班表 CSV 导入员工和班次
package seed

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/domain"
)

// 排班表中的信息列，其余表头为 YYYY-MM-DD 的列都是日期列，单元格中是当天的班次，多个班次用 ", " 分隔
const (
	ColumnUsername = "用户名"
	ColumnFullName = "姓名"
	ColumnEmail    = "邮箱"
	ColumnRole     = "角色"
)

var requiredColumns = []string{ColumnUsername, ColumnFullName, ColumnEmail, ColumnRole}

type Store interface {
	GetEmployeeByUsername(ctx context.Context, username string) (*domain.Employee, error)
	CreateEmployee(ctx context.Context, employee *domain.Employee) error
	CreateShift(ctx context.Context, shift *domain.Shift) error
}

type Summary struct {
	Employees int
	Shifts    int
	Skipped   int
}

// SeedRoster 导入排班表，数据库中不存在的员工会以 passwordHash 为密码新建。
// 单行或单个班次出错只记录日志并跳过，表头错误直接返回。
func SeedRoster(ctx context.Context, store Store, r io.Reader, passwordHash string) (*Summary, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	// 读取表头
	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("读取表头失败: %w", err)
	}

	dateColumns := map[string]time.Time{}
	for _, header := range headers {
		if date, err := time.Parse(domain.DateLayout, header); err == nil {
			dateColumns[header] = date
		}
	}
	for _, column := range requiredColumns {
		if !slices.Contains(headers, column) {
			return nil, fmt.Errorf("没有找到信息列 %s", column)
		}
	}
	if len(dateColumns) == 0 {
		return nil, errors.New("没有找到日期列")
	}

	summary := &Summary{}
	for {
		row, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return summary, fmt.Errorf("读取文件失败: %w", err)
		}

		record := make(map[string]string, len(row))
		for i, value := range row {
			record[headers[i]] = strings.TrimSpace(value)
		}

		employee, created, err := ensureEmployee(ctx, store, record, passwordHash)
		if err != nil {
			slog.Error("导入员工失败", "username", record[ColumnUsername], "error", err)
			summary.Skipped++
			continue
		}
		if created {
			summary.Employees++
		}

		for header, date := range dateColumns {
			for _, cell := range strings.Split(record[header], ",") {
				cell = strings.TrimSpace(cell)
				if cell == "" {
					continue
				}

				shift, err := parseShift(employee.ID, date, cell)
				if err != nil {
					slog.Error("班次格式错误", "username", employee.Username, "date", header, "value", cell)
					summary.Skipped++
					continue
				}

				if err := store.CreateShift(ctx, shift); err != nil {
					slog.Error("插入班次失败", "username", employee.Username, "date", header, "error", err)
					summary.Skipped++
					continue
				}
				summary.Shifts++
			}
		}
	}

	slog.Info("插入数据完成", "employees", summary.Employees, "shifts", summary.Shifts, "skipped", summary.Skipped)
	return summary, nil
}

func ensureEmployee(ctx context.Context, store Store, record map[string]string, passwordHash string) (*domain.Employee, bool, error) {
	username := record[ColumnUsername]
	if username == "" {
		return nil, false, errors.New("用户名为空")
	}

	employee, err := store.GetEmployeeByUsername(ctx, username)
	if err == nil {
		return employee, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}

	// 表示该员工不在数据库中，需要新建并插入
	role := domain.Role(record[ColumnRole])
	if role != domain.RoleEmployee && role != domain.RoleManager {
		return nil, false, fmt.Errorf("未知的角色 %q", record[ColumnRole])
	}

	employee = &domain.Employee{
		Username:     username,
		PasswordHash: passwordHash,
		FullName:     record[ColumnFullName],
		Email:        record[ColumnEmail],
		Role:         role,
	}
	if err := store.CreateEmployee(ctx, employee); err != nil {
		return nil, false, err
	}

	return employee, true, nil
}

func parseShift(employeeID int64, date time.Time, cell string) (*domain.Shift, error) {
	startText, endText, ok := strings.Cut(cell, "-")
	if !ok {
		return nil, fmt.Errorf("缺少分隔符: %s", cell)
	}

	start, err := domain.ParseTimeOfDay(strings.TrimSpace(startText))
	if err != nil {
		return nil, err
	}
	end, err := domain.ParseTimeOfDay(strings.TrimSpace(endText))
	if err != nil {
		return nil, err
	}
	if start >= end {
		return nil, fmt.Errorf("结束时间必须晚于开始时间: %s", cell)
	}

	return &domain.Shift{
		EmployeeID: employeeID,
		Date:       date,
		StartTime:  start,
		EndTime:    end,
	}, nil
}
