package domain

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// TimeOfDay 表示一天中的某个时刻，单位为从零点开始的分钟数
type TimeOfDay int

const EndOfDay TimeOfDay = 24 * 60

var ErrInvalidTimeOfDay = errors.New("time format is invalid")

// ParseTimeOfDay 接受 HH:MM 或者 HH:MM:SS（数据库中 time 类型的文本形式），允许 24:00 作为结束时间
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, ErrInvalidTimeOfDay
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || len(parts[0]) > 2 {
		return 0, ErrInvalidTimeOfDay
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || len(parts[1]) != 2 {
		return 0, ErrInvalidTimeOfDay
	}
	if len(parts) == 3 {
		if second, err := strconv.Atoi(parts[2]); err != nil || second != 0 {
			return 0, ErrInvalidTimeOfDay
		}
	}

	if hour < 0 || hour > 24 || minute < 0 || minute > 59 || (hour == 24 && minute != 0) {
		return 0, ErrInvalidTimeOfDay
	}

	return TimeOfDay(hour*60 + minute), nil
}

func MustParseTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(fmt.Sprintf("invalid time of day %q", s))
	}
	return t
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(text []byte) error {
	parsed, err := ParseTimeOfDay(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Scan 读取数据库中 time 类型的值，例如 "09:00:00"
func (t *TimeOfDay) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return t.UnmarshalText([]byte(v))
	case []byte:
		return t.UnmarshalText(v)
	case time.Time:
		*t = TimeOfDay(v.Hour()*60 + v.Minute())
		return nil
	default:
		return fmt.Errorf("cannot scan %T into TimeOfDay", src)
	}
}

func (t TimeOfDay) Value() (driver.Value, error) {
	return t.String(), nil
}

// DateOf 返回 t 在 loc 时区下的日历日期，统一用 UTC 零点表示，和数据库中 date 类型的扫描结果一致
func DateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Shift 表示某个员工某一天的一段连续工作时间，区间为左闭右开
type Shift struct {
	ID               int64     `json:"id"`
	EmployeeID       int64     `json:"employeeID"`
	Date             time.Time `json:"date"`
	StartTime        TimeOfDay `json:"startTime"`
	EndTime          TimeOfDay `json:"endTime"`
	Modified         bool      `json:"modified"`         // 为 true 表示该班次是由换班/加班审批产生或修改的
	SourceEmployeeID *int64    `json:"sourceEmployeeID"` // 班次的原负责人，只有经过转让的班次才有
	CreatedAt        time.Time `json:"createdAt"`
	Version          int32     `json:"-"`
}

func (s *Shift) DateString() string {
	return s.Date.Format(DateLayout)
}

func (s *Shift) TimeRange() string {
	return s.StartTime.String() + "-" + s.EndTime.String()
}
