package workflow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/domain"
	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/workflow"
	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/workflow/workflowtest"
)

var (
	tokyo, _ = time.LoadLocation("Asia/Tokyo")
	today    = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	tomorrow = today.AddDate(0, 0, 1)
	nextWeek = today.AddDate(0, 0, 7)
)

type fixture struct {
	store    *workflowtest.Store
	notifier *workflowtest.Recorder
	manager  *workflow.Manager

	alice *domain.Employee
	bob   *domain.Employee
	carol *domain.Employee
	mika  *domain.Employee
	ken   *domain.Employee
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	now := func() time.Time { return time.Date(2025, 3, 10, 10, 0, 0, 0, tokyo) }

	store := workflowtest.NewStore()
	store.Now = now
	notifier := &workflowtest.Recorder{}

	f := &fixture{
		store:    store,
		notifier: notifier,
		manager:  workflow.NewManager(store, notifier, tokyo).WithClock(now),
	}
	f.alice = store.AddEmployee(&domain.Employee{Username: "alice", FullName: "Alice Sato"})
	f.bob = store.AddEmployee(&domain.Employee{Username: "bob", FullName: "Bob Suzuki"})
	f.carol = store.AddEmployee(&domain.Employee{Username: "carol", FullName: "Carol Tanaka"})
	f.mika = store.AddEmployee(&domain.Employee{Username: "mika", FullName: "Mika Ito", Role: domain.RoleManager})
	f.ken = store.AddEmployee(&domain.Employee{Username: "ken", FullName: "Ken Mori", Role: domain.RoleManager})

	return f
}

func spans(shifts []*domain.Shift) []string {
	result := make([]string, 0, len(shifts))
	for _, s := range shifts {
		result = append(result, s.DateString()+" "+s.TimeRange())
	}
	return result
}

func requestFor(t *testing.T, requests []*domain.ApprovalRequest, counterpartyID int64) *domain.ApprovalRequest {
	t.Helper()

	for _, r := range requests {
		if r.CounterpartyID != nil && *r.CounterpartyID == counterpartyID {
			return r
		}
	}
	t.Fatalf("no request for counterparty %d", counterpartyID)
	return nil
}

func TestCreateExchangeRejectsPastDate(t *testing.T) {
	f := newFixture(t)
	shift := f.store.AddShift(f.alice.ID, today.AddDate(0, 0, -1), "09:00", "12:00")

	res := f.manager.CreateExchange(context.Background(), f.alice.ID, shift.ID, []int64{f.bob.ID})

	assert.False(t, res.Success)
	assert.Equal(t, workflow.KindValidation, res.Kind)
	assert.Contains(t, res.Message, "past date")
	assert.Empty(t, f.store.Requests())
}

func TestCreateExchangeAllowsToday(t *testing.T) {
	f := newFixture(t)
	shift := f.store.AddShift(f.alice.ID, today, "18:00", "21:00")

	res := f.manager.CreateExchange(context.Background(), f.alice.ID, shift.ID, []int64{f.bob.ID})

	require.True(t, res.Success, res.Message)
	assert.Equal(t, "exchange request sent to 1 employee(s)", res.Message)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shift := f.store.AddShift(f.alice.ID, tomorrow, "09:00", "12:00")

	tests := []struct {
		name    string
		result  workflow.Result[*workflow.Submitted]
		kind    workflow.ErrorKind
		message string
	}{
		{
			name:    "no approvers",
			result:  f.manager.CreateExchange(ctx, f.alice.ID, shift.ID, nil),
			kind:    workflow.KindValidation,
			message: "missing required fields: CounterpartyIDs",
		},
		{
			name:    "missing reason",
			result:  f.manager.CreateDeletion(ctx, f.alice.ID, shift.ID, "   "),
			kind:    workflow.KindValidation,
			message: "missing required fields: Reason",
		},
		{
			name:    "send to self",
			result:  f.manager.CreateExchange(ctx, f.alice.ID, shift.ID, []int64{f.alice.ID}),
			kind:    workflow.KindValidation,
			message: "you cannot send a request to yourself",
		},
		{
			name:    "someone else's shift",
			result:  f.manager.CreateExchange(ctx, f.bob.ID, shift.ID, []int64{f.carol.ID}),
			kind:    workflow.KindAuthorization,
			message: "you can only exchange your own shifts",
		},
		{
			name:    "unknown shift",
			result:  f.manager.CreateExchange(ctx, f.alice.ID, 9999, []int64{f.bob.ID}),
			kind:    workflow.KindNotFound,
			message: "shift not found",
		},
		{
			name:    "unknown approver",
			result:  f.manager.CreateExchange(ctx, f.alice.ID, shift.ID, []int64{9999}),
			kind:    workflow.KindNotFound,
			message: "employee 9999 not found",
		},
		{
			name: "addition by non-manager",
			result: f.manager.CreateAddition(ctx, f.alice.ID, tomorrow,
				domain.MustParseTimeOfDay("09:00"), domain.MustParseTimeOfDay("12:00"), []int64{f.bob.ID}),
			kind:    workflow.KindAuthorization,
			message: "only managers can request additions",
		},
		{
			name: "addition with reversed times",
			result: f.manager.CreateAddition(ctx, f.mika.ID, tomorrow,
				domain.MustParseTimeOfDay("12:00"), domain.MustParseTimeOfDay("09:00"), []int64{f.bob.ID}),
			kind:    workflow.KindValidation,
			message: "end time must be after start time",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, tt.result.Success)
			assert.Equal(t, tt.kind, tt.result.Kind)
			assert.Equal(t, tt.message, tt.result.Message)
		})
	}

	assert.Empty(t, f.store.Requests())
}

func TestCreateExchangeRejectsDuplicatePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shift := f.store.AddShift(f.alice.ID, tomorrow, "09:00", "12:00")

	first := f.manager.CreateExchange(ctx, f.alice.ID, shift.ID, []int64{f.bob.ID, f.bob.ID})
	require.True(t, first.Success, first.Message)
	assert.Len(t, first.Data.Requests, 1)

	second := f.manager.CreateExchange(ctx, f.alice.ID, shift.ID, []int64{f.carol.ID, f.bob.ID})
	assert.False(t, second.Success)
	assert.Equal(t, workflow.KindDuplicateRequest, second.Kind)
	assert.Len(t, f.store.Requests(), 1)

	// 被拒绝后可以重新发起
	rejected := f.manager.Reject(ctx, first.Data.Requests[0].ID, f.bob.ID)
	require.True(t, rejected.Success, rejected.Message)

	third := f.manager.CreateExchange(ctx, f.alice.ID, shift.ID, []int64{f.bob.ID})
	assert.True(t, third.Success, third.Message)
}

func TestApproveExchangeMovesShiftAndRejectsSiblings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	donor := f.store.AddShift(f.alice.ID, tomorrow, "12:00", "18:00")
	f.store.AddShift(f.bob.ID, tomorrow, "09:00", "12:00")

	created := f.manager.CreateExchange(ctx, f.alice.ID, donor.ID, []int64{f.bob.ID, f.carol.ID})
	require.True(t, created.Success, created.Message)
	require.Len(t, created.Data.Requests, 2)

	toBob := requestFor(t, created.Data.Requests, f.bob.ID)
	toCarol := requestFor(t, created.Data.Requests, f.carol.ID)

	res := f.manager.Approve(ctx, toBob.ID, f.bob.ID)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "request approved", res.Message)
	assert.Equal(t, domain.RequestStatusApproved, res.Data.Status)
	assert.NotNil(t, res.Data.RespondedAt)

	assert.Empty(t, f.store.ShiftsOf(f.alice.ID))

	bobShifts := f.store.ShiftsOf(f.bob.ID)
	require.Len(t, bobShifts, 1)
	assert.Equal(t, "09:00-18:00", bobShifts[0].TimeRange())
	assert.True(t, bobShifts[0].Modified)
	require.NotNil(t, bobShifts[0].SourceEmployeeID)
	assert.Equal(t, f.alice.ID, *bobShifts[0].SourceEmployeeID)

	assert.Equal(t, domain.RequestStatusRejected, f.store.Request(toCarol.ID).Status)
	assert.Empty(t, f.store.ShiftsOf(f.carol.ID))

	assert.Equal(t, []domain.NotificationEvent{
		domain.NotificationRequestCreated,
		domain.NotificationRequestCreated,
		domain.NotificationRequestApproved,
		domain.NotificationRequestRejected,
	}, f.notifier.Events())
}

func TestApproveExchangeIntoEmptyDayCreatesShift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	donor := f.store.AddShift(f.alice.ID, tomorrow, "13:00", "17:00")
	f.store.AddShift(f.bob.ID, tomorrow, "07:00", "09:00")

	created := f.manager.CreateExchange(ctx, f.alice.ID, donor.ID, []int64{f.bob.ID})
	require.True(t, created.Success, created.Message)

	res := f.manager.Approve(ctx, created.Data.Requests[0].ID, f.bob.ID)
	require.True(t, res.Success, res.Message)

	assert.Equal(t, []string{
		"2025-03-11 07:00-09:00",
		"2025-03-11 13:00-17:00",
	}, spans(f.store.ShiftsOf(f.bob.ID)))
}

func TestApproveTerminalRequestIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	donor := f.store.AddShift(f.alice.ID, tomorrow, "12:00", "18:00")

	created := f.manager.CreateExchange(ctx, f.alice.ID, donor.ID, []int64{f.bob.ID, f.carol.ID})
	require.True(t, created.Success, created.Message)
	toBob := requestFor(t, created.Data.Requests, f.bob.ID)
	toCarol := requestFor(t, created.Data.Requests, f.carol.ID)

	require.True(t, f.manager.Approve(ctx, toBob.ID, f.bob.ID).Success)
	before := spans(f.store.ShiftsOf(f.bob.ID))

	again := f.manager.Approve(ctx, toBob.ID, f.bob.ID)
	assert.False(t, again.Success)
	assert.Equal(t, workflow.KindAlreadyProcessed, again.Kind)
	assert.Equal(t, "this request has already been approved", again.Message)

	late := f.manager.Approve(ctx, toCarol.ID, f.carol.ID)
	assert.False(t, late.Success)
	assert.Equal(t, workflow.KindAlreadyProcessed, late.Kind)
	assert.Equal(t, "this request has already been rejected", late.Message)

	rejectAfter := f.manager.Reject(ctx, toBob.ID, f.bob.ID)
	assert.False(t, rejectAfter.Success)
	assert.Equal(t, workflow.KindAlreadyProcessed, rejectAfter.Kind)

	assert.Equal(t, before, spans(f.store.ShiftsOf(f.bob.ID)))
	assert.Empty(t, f.store.ShiftsOf(f.carol.ID))
}

func TestRespondRequiresDesignatedApprover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	donor := f.store.AddShift(f.alice.ID, tomorrow, "12:00", "18:00")

	created := f.manager.CreateExchange(ctx, f.alice.ID, donor.ID, []int64{f.bob.ID})
	require.True(t, created.Success, created.Message)
	id := created.Data.Requests[0].ID

	for _, actor := range []int64{f.carol.ID, f.alice.ID, f.mika.ID, 9999} {
		res := f.manager.Approve(ctx, id, actor)
		assert.False(t, res.Success)
		assert.Equal(t, workflow.KindAuthorization, res.Kind)
	}

	missing := f.manager.Approve(ctx, 9999, f.bob.ID)
	assert.Equal(t, workflow.KindNotFound, missing.Kind)

	assert.Equal(t, domain.RequestStatusPending, f.store.Request(id).Status)
	assert.Len(t, f.store.ShiftsOf(f.alice.ID), 1)
}

func TestApproveAdditionMergesAdjacentShift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.AddShift(f.bob.ID, nextWeek, "20:00", "23:00")

	created := f.manager.CreateAddition(ctx, f.mika.ID, nextWeek,
		domain.MustParseTimeOfDay("18:00"), domain.MustParseTimeOfDay("20:00"), []int64{f.bob.ID})
	require.True(t, created.Success, created.Message)
	assert.Equal(t, "addition request sent to 1 employee(s)", created.Message)
	assert.Empty(t, created.Data.Advisories)

	res := f.manager.Approve(ctx, created.Data.Requests[0].ID, f.bob.ID)
	require.True(t, res.Success, res.Message)

	shifts := f.store.ShiftsOf(f.bob.ID)
	require.Len(t, shifts, 1)
	assert.Equal(t, "18:00-23:00", shifts[0].TimeRange())
	assert.True(t, shifts[0].Modified)
}

func TestApproveAdditionBridgingTwoShifts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.AddShift(f.bob.ID, nextWeek, "09:00", "12:00")
	f.store.AddShift(f.bob.ID, nextWeek, "14:00", "18:00")

	created := f.manager.CreateAddition(ctx, f.mika.ID, nextWeek,
		domain.MustParseTimeOfDay("11:00"), domain.MustParseTimeOfDay("15:00"), []int64{f.bob.ID})
	require.True(t, created.Success, created.Message)
	require.Len(t, created.Data.Advisories, 1)
	assert.Equal(t, f.bob.ID, created.Data.Advisories[0].EmployeeID)

	res := f.manager.Approve(ctx, created.Data.Requests[0].ID, f.bob.ID)
	require.True(t, res.Success, res.Message)

	assert.Equal(t, []string{"2025-03-17 09:00-18:00"}, spans(f.store.ShiftsOf(f.bob.ID)))
}

func TestAdditionToMultipleTargetsIsIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := f.manager.CreateAddition(ctx, f.mika.ID, nextWeek,
		domain.MustParseTimeOfDay("09:00"), domain.MustParseTimeOfDay("12:00"), []int64{f.bob.ID, f.carol.ID})
	require.True(t, created.Success, created.Message)

	toBob := requestFor(t, created.Data.Requests, f.bob.ID)
	toCarol := requestFor(t, created.Data.Requests, f.carol.ID)

	require.True(t, f.manager.Approve(ctx, toBob.ID, f.bob.ID).Success)
	assert.Equal(t, domain.RequestStatusPending, f.store.Request(toCarol.ID).Status)

	require.True(t, f.manager.Approve(ctx, toCarol.ID, f.carol.ID).Success)
	assert.Len(t, f.store.ShiftsOf(f.bob.ID), 1)
	assert.Len(t, f.store.ShiftsOf(f.carol.ID), 1)
}

func TestDeletionIsApprovedByAnotherManager(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	own := f.store.AddShift(f.mika.ID, tomorrow, "09:00", "12:00")

	created := f.manager.CreateDeletion(ctx, f.mika.ID, own.ID, "family matter")
	require.True(t, created.Success, created.Message)
	assert.Equal(t, "deletion request submitted", created.Message)
	id := created.Data.Requests[0].ID

	self := f.manager.PendingFor(ctx, f.mika.ID)
	require.True(t, self.Success)
	assert.Empty(t, self.Data)

	other := f.manager.PendingFor(ctx, f.ken.ID)
	require.True(t, other.Success)
	require.Len(t, other.Data, 1)
	assert.Equal(t, id, other.Data[0].ID)

	denied := f.manager.Approve(ctx, id, f.mika.ID)
	assert.Equal(t, workflow.KindAuthorization, denied.Kind)
	denied = f.manager.Approve(ctx, id, f.bob.ID)
	assert.Equal(t, workflow.KindAuthorization, denied.Kind)

	res := f.manager.Approve(ctx, id, f.ken.ID)
	require.True(t, res.Success, res.Message)
	assert.Empty(t, f.store.ShiftsOf(f.mika.ID))

	dup := f.manager.CreateDeletion(ctx, f.mika.ID, own.ID, "again")
	assert.Equal(t, workflow.KindNotFound, dup.Kind)
}

func TestCreateDeletionRejectsDuplicatePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shift := f.store.AddShift(f.alice.ID, tomorrow, "09:00", "12:00")

	require.True(t, f.manager.CreateDeletion(ctx, f.alice.ID, shift.ID, "sick").Success)

	res := f.manager.CreateDeletion(ctx, f.alice.ID, shift.ID, "still sick")
	assert.False(t, res.Success)
	assert.Equal(t, workflow.KindDuplicateRequest, res.Kind)
}

func TestApproveDeletionRejectsPendingExchangesOnShift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shift := f.store.AddShift(f.alice.ID, tomorrow, "09:00", "12:00")

	exchange := f.manager.CreateExchange(ctx, f.alice.ID, shift.ID, []int64{f.bob.ID})
	require.True(t, exchange.Success, exchange.Message)
	deletion := f.manager.CreateDeletion(ctx, f.alice.ID, shift.ID, "sick")
	require.True(t, deletion.Success, deletion.Message)

	require.True(t, f.manager.Approve(ctx, deletion.Data.Requests[0].ID, f.mika.ID).Success)

	exchangeID := exchange.Data.Requests[0].ID
	stored := f.store.Request(exchangeID)
	assert.Equal(t, domain.RequestStatusRejected, stored.Status)
	assert.NotNil(t, stored.RespondedAt)
	assert.Nil(t, stored.ShiftID)

	pending := f.manager.PendingFor(ctx, f.bob.ID)
	require.True(t, pending.Success)
	assert.Empty(t, pending.Data)

	res := f.manager.Approve(ctx, exchangeID, f.bob.ID)
	assert.False(t, res.Success)
	assert.Equal(t, workflow.KindAlreadyProcessed, res.Kind)
	assert.Equal(t, "this request has already been rejected", res.Message)
	assert.Empty(t, f.store.ShiftsOf(f.bob.ID))

	assert.Equal(t, []domain.NotificationEvent{
		domain.NotificationRequestCreated,
		domain.NotificationRequestCreated,
		domain.NotificationRequestCreated,
		domain.NotificationRequestApproved,
		domain.NotificationRequestRejected,
	}, f.notifier.Events())
}

func TestApproveExchangeRejectsPendingDeletionOnShift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shift := f.store.AddShift(f.alice.ID, tomorrow, "09:00", "12:00")

	exchange := f.manager.CreateExchange(ctx, f.alice.ID, shift.ID, []int64{f.bob.ID})
	require.True(t, exchange.Success, exchange.Message)
	deletion := f.manager.CreateDeletion(ctx, f.alice.ID, shift.ID, "sick")
	require.True(t, deletion.Success, deletion.Message)
	deletionID := deletion.Data.Requests[0].ID

	require.True(t, f.manager.Approve(ctx, exchange.Data.Requests[0].ID, f.bob.ID).Success)
	assert.Equal(t, []string{"2025-03-11 09:00-12:00"}, spans(f.store.ShiftsOf(f.bob.ID)))

	assert.Equal(t, domain.RequestStatusRejected, f.store.Request(deletionID).Status)

	pending := f.manager.PendingFor(ctx, f.ken.ID)
	require.True(t, pending.Success)
	assert.Empty(t, pending.Data)

	res := f.manager.Approve(ctx, deletionID, f.ken.ID)
	assert.Equal(t, workflow.KindAlreadyProcessed, res.Kind)
	assert.Equal(t, []string{"2025-03-11 09:00-12:00"}, spans(f.store.ShiftsOf(f.bob.ID)))
}

func TestApproveAdditionRejectsPendingRequestsOnAbsorbedShift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.AddShift(f.bob.ID, tomorrow, "09:00", "10:00")
	absorbed := f.store.AddShift(f.bob.ID, tomorrow, "12:00", "14:00")

	deletion := f.manager.CreateDeletion(ctx, f.bob.ID, absorbed.ID, "dentist")
	require.True(t, deletion.Success, deletion.Message)

	addition := f.manager.CreateAddition(ctx, f.mika.ID, tomorrow,
		domain.MustParseTimeOfDay("10:00"), domain.MustParseTimeOfDay("12:00"), []int64{f.bob.ID})
	require.True(t, addition.Success, addition.Message)

	require.True(t, f.manager.Approve(ctx, addition.Data.Requests[0].ID, f.bob.ID).Success)
	assert.Equal(t, []string{"2025-03-11 09:00-14:00"}, spans(f.store.ShiftsOf(f.bob.ID)))
	assert.Equal(t, domain.RequestStatusRejected, f.store.Request(deletion.Data.Requests[0].ID).Status)
}

func TestApproveRequestWhoseShiftWasRemovedClosesIt(t *testing.T) {
	for _, kind := range []domain.RequestKind{domain.RequestKindExchange, domain.RequestKindDeletion} {
		t.Run(string(kind), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			shift := f.store.AddShift(f.alice.ID, tomorrow, "09:00", "12:00")

			var created workflow.Result[*workflow.Submitted]
			approver := f.bob.ID
			if kind == domain.RequestKindExchange {
				created = f.manager.CreateExchange(ctx, f.alice.ID, shift.ID, []int64{f.bob.ID})
			} else {
				created = f.manager.CreateDeletion(ctx, f.alice.ID, shift.ID, "sick")
				approver = f.ken.ID
			}
			require.True(t, created.Success, created.Message)
			id := created.Data.Requests[0].ID

			f.store.DropShift(shift.ID)
			require.Nil(t, f.store.Request(id).ShiftID)

			res := f.manager.Approve(ctx, id, approver)
			assert.False(t, res.Success)
			assert.Equal(t, workflow.KindNotFound, res.Kind)
			assert.Equal(t, "the shift no longer exists", res.Message)
			assert.Equal(t, domain.RequestStatusRejected, f.store.Request(id).Status)
			assert.Empty(t, f.store.ShiftsOf(f.bob.ID))

			events := f.notifier.Events()
			assert.Equal(t, domain.NotificationRequestRejected, events[len(events)-1])

			again := f.manager.Approve(ctx, id, approver)
			assert.Equal(t, workflow.KindAlreadyProcessed, again.Kind)
		})
	}
}

func TestApproveLeavesNoPartialStateOnStoreFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	donor := f.store.AddShift(f.alice.ID, tomorrow, "12:00", "18:00")
	f.store.AddShift(f.bob.ID, tomorrow, "09:00", "12:00")

	created := f.manager.CreateExchange(ctx, f.alice.ID, donor.ID, []int64{f.bob.ID})
	require.True(t, created.Success, created.Message)

	f.store.FailApply = errors.New("connection reset")
	res := f.manager.Approve(ctx, created.Data.Requests[0].ID, f.bob.ID)

	assert.False(t, res.Success)
	assert.Equal(t, workflow.KindInternal, res.Kind)
	assert.Equal(t, "internal error", res.Message)
	assert.Equal(t, domain.RequestStatusPending, f.store.Request(created.Data.Requests[0].ID).Status)
	assert.Equal(t, []string{"2025-03-11 12:00-18:00"}, spans(f.store.ShiftsOf(f.alice.ID)))
	assert.Equal(t, []string{"2025-03-11 09:00-12:00"}, spans(f.store.ShiftsOf(f.bob.ID)))
}

func TestCancelRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shift := f.store.AddShift(f.alice.ID, tomorrow, "09:00", "12:00")

	created := f.manager.CreateExchange(ctx, f.alice.ID, shift.ID, []int64{f.bob.ID, f.carol.ID})
	require.True(t, created.Success, created.Message)
	toBob := requestFor(t, created.Data.Requests, f.bob.ID)
	toCarol := requestFor(t, created.Data.Requests, f.carol.ID)

	notOwner := f.manager.Cancel(ctx, toBob.ID, f.bob.ID)
	assert.Equal(t, workflow.KindAuthorization, notOwner.Kind)
	assert.Equal(t, "only the requester can cancel this request", notOwner.Message)

	res := f.manager.Cancel(ctx, toBob.ID, f.alice.ID)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, domain.RequestStatusCancelled, res.Data.Status)
	assert.Equal(t, domain.RequestStatusPending, f.store.Request(toCarol.ID).Status)

	twice := f.manager.Cancel(ctx, toBob.ID, f.alice.ID)
	assert.Equal(t, workflow.KindAlreadyProcessed, twice.Kind)

	require.True(t, f.manager.Approve(ctx, toCarol.ID, f.carol.ID).Success)
	approved := f.manager.Cancel(ctx, toCarol.ID, f.alice.ID)
	assert.Equal(t, workflow.KindAuthorization, approved.Kind)
	assert.Equal(t, "cannot cancel an approved request", approved.Message)

	deletionShift := f.store.AddShift(f.alice.ID, nextWeek, "09:00", "12:00")
	deletion := f.manager.CreateDeletion(ctx, f.alice.ID, deletionShift.ID, "sick")
	require.True(t, deletion.Success, deletion.Message)
	wrongKind := f.manager.Cancel(ctx, deletion.Data.Requests[0].ID, f.alice.ID)
	assert.Equal(t, workflow.KindValidation, wrongKind.Kind)
}

func TestNotificationFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.notifier.Err = errors.New("broker unavailable")
	shift := f.store.AddShift(f.alice.ID, tomorrow, "09:00", "12:00")

	created := f.manager.CreateExchange(ctx, f.alice.ID, shift.ID, []int64{f.bob.ID})
	require.True(t, created.Success, created.Message)

	res := f.manager.Approve(ctx, created.Data.Requests[0].ID, f.bob.ID)
	assert.True(t, res.Success, res.Message)
	assert.Len(t, f.notifier.Events(), 2)
}

func TestQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shift := f.store.AddShift(f.alice.ID, tomorrow, "09:00", "12:00")

	created := f.manager.CreateExchange(ctx, f.alice.ID, shift.ID, []int64{f.bob.ID, f.carol.ID})
	require.True(t, created.Success, created.Message)

	pending := f.manager.PendingFor(ctx, f.bob.ID)
	require.True(t, pending.Success)
	require.Len(t, pending.Data, 1)
	assert.Equal(t, f.alice.ID, pending.Data[0].RequesterID)

	outgoing := f.manager.OutgoingExchanges(ctx, f.alice.ID)
	require.True(t, outgoing.Success)
	assert.Len(t, outgoing.Data, 2)

	got := f.manager.Get(ctx, pending.Data[0].ID)
	require.True(t, got.Success)
	assert.Equal(t, domain.RequestKindExchange, got.Data.Kind)

	missing := f.manager.Get(ctx, 9999)
	assert.Equal(t, workflow.KindNotFound, missing.Kind)

	unknown := f.manager.PendingFor(ctx, 9999)
	assert.Equal(t, workflow.KindNotFound, unknown.Kind)
}
