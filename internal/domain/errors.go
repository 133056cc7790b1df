package domain

import "errors"

var (
	ErrRequestNotPending = errors.New("申请已经被处理")
	ErrDuplicateRequest  = errors.New("已存在相同的待处理申请")
	ErrShiftGone         = errors.New("班次已经不存在")
	ErrShiftChanged      = errors.New("班次已被其他操作修改")
)
