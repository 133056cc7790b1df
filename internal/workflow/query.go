package workflow

import (
	"context"
	"slices"

	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/domain"
)

func (m *Manager) Get(ctx context.Context, requestID int64) Result[*domain.ApprovalRequest] {
	request, err := m.loadRequest(ctx, requestID)
	if err != nil {
		return fail[*domain.ApprovalRequest]("get", err)
	}
	return succeed("request found", request)
}

// PendingFor 返回等待 actor 审批的申请，管理者还会看到其他人的删班申请
func (m *Manager) PendingFor(ctx context.Context, actorID int64) Result[[]*domain.ApprovalRequest] {
	requests, err := m.pendingFor(ctx, actorID)
	if err != nil {
		return fail[[]*domain.ApprovalRequest]("pending", err)
	}
	return succeed("pending requests", requests)
}

func (m *Manager) pendingFor(ctx context.Context, actorID int64) ([]*domain.ApprovalRequest, error) {
	actor, err := m.loadEmployee(ctx, actorID)
	if err != nil {
		return nil, err
	}

	requests, err := m.store.GetPendingRequestsByCounterparty(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	if actor.IsManager() {
		deletions, err := m.store.GetPendingRequestsByKind(ctx, domain.RequestKindDeletion)
		if err != nil {
			return nil, err
		}
		for _, request := range deletions {
			if CanRespond(request, actor) {
				requests = append(requests, request)
			}
		}
	}

	slices.SortStableFunc(requests, func(a, b *domain.ApprovalRequest) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return requests, nil
}

// OutgoingExchanges 返回 requesterID 发出的全部换班申请，用于查看换班进度
func (m *Manager) OutgoingExchanges(ctx context.Context, requesterID int64) Result[[]*domain.ApprovalRequest] {
	requests, err := m.store.GetApprovalRequestsByRequester(ctx, requesterID, domain.RequestKindExchange)
	if err != nil {
		return fail[[]*domain.ApprovalRequest]("outgoing", err)
	}
	return succeed("exchange requests", requests)
}
