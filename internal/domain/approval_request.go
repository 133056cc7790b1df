package domain

import "time"

type RequestKind string

const (
	RequestKindExchange RequestKind = "exchange"
	RequestKindAddition RequestKind = "addition"
	RequestKindDeletion RequestKind = "deletion"
)

type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusApproved  RequestStatus = "approved"
	RequestStatusRejected  RequestStatus = "rejected"
	RequestStatusCancelled RequestStatus = "cancelled"
)

func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusApproved || s == RequestStatusRejected || s == RequestStatusCancelled
}

// ApprovalRequest 是换班、加班和删班三种申请共用的一行记录。
// 换班和加班会按照对方人数拆分成多行（fan-out），换班的多行共享同一个 ShiftID。
type ApprovalRequest struct {
	ID             int64         `json:"id"`
	Kind           RequestKind   `json:"kind"`
	RequesterID    int64         `json:"requesterID"`
	CounterpartyID *int64        `json:"counterpartyID"` // 换班的接收人或者加班的目标员工，删班申请为空（由任意管理者审批）
	ShiftID        *int64        `json:"shiftID"`        // 换班时被转让的班次，删班时要删除的班次
	Date           time.Time     `json:"date"`
	StartTime      TimeOfDay     `json:"startTime"`
	EndTime        TimeOfDay     `json:"endTime"`
	Reason         string        `json:"reason"`
	Status         RequestStatus `json:"status"`
	CreatedAt      time.Time     `json:"createdAt"`
	RespondedAt    *time.Time    `json:"respondedAt"`
	Version        int32         `json:"-"`
}

func (r *ApprovalRequest) TimeRange() string {
	return r.StartTime.String() + "-" + r.EndTime.String()
}

// ApprovalEffect 描述审批通过时需要在同一个事务中完成的班次变更
type ApprovalEffect struct {
	LockedShiftID  int64   // 事务开始时需要加锁并确认仍然存在的班次，0 表示不需要
	DeleteShiftIDs []int64 // 需要删除的班次，包括换班的原班次和被合并掉的班次
	UpsertShift    *Shift  // ID 为 0 时插入新班次，否则按版本号更新
}
