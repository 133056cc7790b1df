package conversation

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/domain"
)

var (
	ErrInvalidDate      = errors.New("date format is invalid")
	ErrPastDate         = errors.New("past dates cannot be used")
	ErrInvalidTimeRange = errors.New("time format is invalid")
	ErrEndBeforeStart   = errors.New("end time must be after start time")
	ErrNoEmployeeName   = errors.New("please enter at least one employee name")
)

var spaceRemover = strings.NewReplacer(" ", "", "　", "", "\t", "")

// normalize 去掉半角和全角空格并转为小写，用于命令和姓名的比较
func normalize(s string) string {
	return strings.ToLower(spaceRemover.Replace(strings.TrimSpace(s)))
}

// ParseDate 接受 MM/DD 和 YYYY-MM-DD 两种格式，MM/DD 取 today 所在的年份
func ParseDate(text string, today time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)

	var date time.Time
	if parsed, err := time.Parse(domain.DateLayout, text); err == nil {
		date = parsed
	} else if parsed, err := time.Parse("1/2", text); err == nil {
		date = time.Date(today.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
		// 2 月 29 日在平年会被 time.Date 规范化成 3 月 1 日
		if date.Month() != parsed.Month() {
			return time.Time{}, ErrInvalidDate
		}
	} else {
		return time.Time{}, ErrInvalidDate
	}

	if date.Before(today) {
		return time.Time{}, ErrPastDate
	}

	return date, nil
}

// ParseTimeRange 解析 HH:MM-HH:MM，也接受 ~ 和 〜 作为分隔符
func ParseTimeRange(text string) (domain.TimeOfDay, domain.TimeOfDay, error) {
	text = strings.NewReplacer("〜", "-", "~", "-", "～", "-").Replace(spaceRemover.Replace(text))

	parts := strings.Split(text, "-")
	if len(parts) != 2 {
		return 0, 0, ErrInvalidTimeRange
	}

	start, err := domain.ParseTimeOfDay(parts[0])
	if err != nil {
		return 0, 0, ErrInvalidTimeRange
	}
	end, err := domain.ParseTimeOfDay(parts[1])
	if err != nil {
		return 0, 0, ErrInvalidTimeRange
	}
	if end <= start {
		return 0, 0, ErrEndBeforeStart
	}

	return start, end, nil
}

// ParseConfirmation 返回用户的回答，ok 为 false 表示既不是肯定也不是否定
func ParseConfirmation(text string) (yes bool, ok bool) {
	switch normalize(text) {
	case "yes", "y", "はい", "ok":
		return true, true
	case "no", "n", "いいえ":
		return false, true
	default:
		return false, false
	}
}

func splitNames(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '、' || r == '，'
	})

	names := make([]string, 0, len(fields))
	for _, field := range fields {
		if name := strings.TrimSpace(field); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// ResolveEmployees 把逗号分隔的姓名解析成员工。
// 每个姓名先按全名或用户名精确匹配，没有结果时再按全名的子串匹配，结果去重后按输入顺序返回。
func ResolveEmployees(text string, candidates []*domain.Employee) ([]*domain.Employee, error) {
	names := splitNames(text)
	if len(names) == 0 {
		return nil, ErrNoEmployeeName
	}

	resolved := make([]*domain.Employee, 0, len(names))
	for _, name := range names {
		employee, err := resolveOne(name, candidates)
		if err != nil {
			return nil, err
		}
		if !slices.ContainsFunc(resolved, func(e *domain.Employee) bool { return e.ID == employee.ID }) {
			resolved = append(resolved, employee)
		}
	}

	return resolved, nil
}

func resolveOne(name string, candidates []*domain.Employee) (*domain.Employee, error) {
	key := normalize(name)

	var exact, partial []*domain.Employee
	for _, e := range candidates {
		fullName := normalize(e.FullName)
		switch {
		case fullName == key || normalize(e.Username) == key:
			exact = append(exact, e)
		case strings.Contains(fullName, key):
			partial = append(partial, e)
		}
	}

	matches := exact
	if len(matches) == 0 {
		matches = partial
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no matching employee: %s", name)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("multiple employees match %s; please be more specific", name)
	}
}
