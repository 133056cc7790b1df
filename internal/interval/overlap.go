package interval

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/domain"
)

// Span 是一天内左闭右开的时间区间 [Start, End)
type Span struct {
	Start domain.TimeOfDay
	End   domain.TimeOfDay
}

func SpanOf(s *domain.Shift) Span {
	return Span{Start: s.StartTime, End: s.EndTime}
}

func (s Span) Valid() bool {
	return s.Start < s.End
}

// Overlaps 判断两个区间是否重叠，端点相接不算重叠
func Overlaps(a, b Span) bool {
	return a.Start < b.End && b.Start < a.End
}

// Touches 判断两个区间重叠或者首尾相接
func Touches(a, b Span) bool {
	return a.Start <= b.End && b.Start <= a.End
}

// Contains 判断 inner 是否完全落在 outer 内
func Contains(outer, inner Span) bool {
	return outer.Start <= inner.Start && inner.End <= outer.End
}

type Store interface {
	GetShiftsByEmployeeAndDate(ctx context.Context, employeeID int64, date time.Time) ([]*domain.Shift, error)
	GetEmployeeByID(ctx context.Context, id int64) (*domain.Employee, error)
}

type Detector struct {
	store Store
}

func NewDetector(store Store) *Detector {
	return &Detector{store: store}
}

// Overlaps 检查某个员工在某天是否已经有和 span 重叠的班次，excludeShiftID 为 0 时不排除任何班次。
// 每个员工每天的班次很少，所以这里直接线性扫描。
func (d *Detector) Overlaps(ctx context.Context, employeeID int64, date time.Time, span Span, excludeShiftID int64) (bool, error) {
	shifts, err := d.store.GetShiftsByEmployeeAndDate(ctx, employeeID, date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	for _, shift := range shifts {
		if excludeShiftID != 0 && shift.ID == excludeShiftID {
			continue
		}
		if Overlaps(SpanOf(shift), span) {
			return true, nil
		}
	}

	return false, nil
}

type Conflict struct {
	EmployeeID  int64  `json:"employeeID"`
	DisplayName string `json:"displayName"`
}

type Partition struct {
	Available   []int64    `json:"available"`
	Conflicting []Conflict `json:"conflicting"`
}

// Partition 将候选员工分成没有冲突和已有重叠班次的两组，保持传入顺序
func (d *Detector) Partition(ctx context.Context, employeeIDs []int64, date time.Time, span Span) (*Partition, error) {
	p := &Partition{
		Available:   make([]int64, 0, len(employeeIDs)),
		Conflicting: make([]Conflict, 0),
	}

	for _, id := range employeeIDs {
		overlaps, err := d.Overlaps(ctx, id, date, span, 0)
		if err != nil {
			return nil, err
		}
		if !overlaps {
			p.Available = append(p.Available, id)
			continue
		}

		name, err := d.displayName(ctx, id)
		if err != nil {
			return nil, err
		}
		p.Conflicting = append(p.Conflicting, Conflict{EmployeeID: id, DisplayName: name})
	}

	return p, nil
}

func (d *Detector) displayName(ctx context.Context, id int64) (string, error) {
	employee, err := d.store.GetEmployeeByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Sprintf("#%d", id), nil
		}
		return "", err
	}
	return employee.FullName, nil
}
