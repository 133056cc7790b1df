package interval

import (
	"slices"
	"time"

	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/domain"
)

type Action string

const (
	ActionCreated   Action = "created"
	ActionUnchanged Action = "unchanged"
	ActionExpanded  Action = "expanded"
)

// Incoming 是要并入某个员工日程的时间段。SourceEmployeeID 为班次原来的负责人，0 表示没有。
type Incoming struct {
	EmployeeID       int64
	Date             time.Time
	Span             Span
	SourceEmployeeID int64
}

type Outcome struct {
	Shift  *domain.Shift
	Action Action
}

// Merge 决定 incoming 与同一员工同一天的 existing 班次如何合并，不会修改 existing 本身：
//   - existing 为空，或者两者既不重叠也不相接：生成新班次
//   - incoming 完全落在 existing 内：原样返回 existing，不打修改标记
//   - 重叠或首尾相接：把 existing 扩展为两者的并集
func Merge(existing *domain.Shift, in Incoming) Outcome {
	if existing == nil || !Touches(SpanOf(existing), in.Span) {
		shift := &domain.Shift{
			EmployeeID: in.EmployeeID,
			Date:       in.Date,
			StartTime:  in.Span.Start,
			EndTime:    in.Span.End,
			Modified:   true,
		}
		if in.SourceEmployeeID != 0 && in.SourceEmployeeID != in.EmployeeID {
			source := in.SourceEmployeeID
			shift.SourceEmployeeID = &source
		}
		return Outcome{Shift: shift, Action: ActionCreated}
	}

	if Contains(SpanOf(existing), in.Span) {
		return Outcome{Shift: existing, Action: ActionUnchanged}
	}

	merged := *existing
	merged.StartTime = min(existing.StartTime, in.Span.Start)
	merged.EndTime = max(existing.EndTime, in.Span.End)
	merged.Modified = true
	if in.SourceEmployeeID != 0 && in.SourceEmployeeID != existing.EmployeeID {
		source := in.SourceEmployeeID
		merged.SourceEmployeeID = &source
	}

	return Outcome{Shift: &merged, Action: ActionExpanded}
}

// Plan 是 Reconcile 的结果，由调用方在同一个事务中执行：先删除 Absorbed，再写入 Upsert
type Plan struct {
	Action   Action
	Upsert   *domain.Shift // Action 为 unchanged 时为 nil
	Absorbed []int64       // 被合并进 Upsert 的其他班次
}

// Reconcile 把 incoming 并入员工当天的全部班次。
// 与 incoming 重叠或相接的班次可能不止一个，此时以最早的一个为基础依次合并，其余的班次被吸收删除，
// 保证结果中同一天不会出现两个重叠的班次。
func Reconcile(existing []*domain.Shift, in Incoming) Plan {
	touching := make([]*domain.Shift, 0, len(existing))
	for _, shift := range existing {
		if shift.EmployeeID != in.EmployeeID || !shift.Date.Equal(in.Date) {
			continue
		}
		if Touches(SpanOf(shift), in.Span) {
			touching = append(touching, shift)
		}
	}

	if len(touching) == 0 {
		out := Merge(nil, in)
		return Plan{Action: out.Action, Upsert: out.Shift}
	}

	for _, shift := range touching {
		if Contains(SpanOf(shift), in.Span) {
			return Plan{Action: ActionUnchanged}
		}
	}

	slices.SortFunc(touching, func(a, b *domain.Shift) int {
		return int(a.StartTime) - int(b.StartTime)
	})

	out := Merge(touching[0], in)
	absorbed := make([]int64, 0, len(touching)-1)
	for _, shift := range touching[1:] {
		out = Outcome{
			Shift: Merge(out.Shift, Incoming{
				EmployeeID: in.EmployeeID,
				Date:       in.Date,
				Span:       SpanOf(shift),
			}).Shift,
			Action: ActionExpanded,
		}
		absorbed = append(absorbed, shift.ID)
	}

	return Plan{Action: ActionExpanded, Upsert: out.Shift, Absorbed: absorbed}
}
