package notifier

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/domain"
)

type published struct {
	key string
	msg amqp.Publishing
}

type fakeChannel struct {
	sent []published
	err  error
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, published{key: key, msg: msg})
	return nil
}

type fakeDirectory struct {
	employees map[int64]*domain.Employee
}

func (d *fakeDirectory) GetEmployeeByID(ctx context.Context, id int64) (*domain.Employee, error) {
	e, ok := d.employees[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return e, nil
}

func (d *fakeDirectory) GetManagers(ctx context.Context) ([]*domain.Employee, error) {
	var managers []*domain.Employee
	for _, id := range []int64{1, 2, 3, 4} {
		if e, ok := d.employees[id]; ok && e.IsManager() {
			managers = append(managers, e)
		}
	}
	return managers, nil
}

func newDirectory() *fakeDirectory {
	return &fakeDirectory{employees: map[int64]*domain.Employee{
		1: {ID: 1, FullName: "Alice", Email: "alice@example.com", Role: domain.RoleEmployee},
		2: {ID: 2, FullName: "Bob", Email: "bob@example.com", Role: domain.RoleEmployee},
		3: {ID: 3, FullName: "Mika", Email: "mika@example.com", Role: domain.RoleManager},
		4: {ID: 4, FullName: "Ken", Email: "ken@example.com", Role: domain.RoleManager},
	}}
}

func request(kind domain.RequestKind, requester int64, counterparty *int64) *domain.ApprovalRequest {
	return &domain.ApprovalRequest{
		ID:             7,
		Kind:           kind,
		RequesterID:    requester,
		CounterpartyID: counterparty,
		Date:           time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC),
		StartTime:      domain.MustParseTimeOfDay("09:00"),
		EndTime:        domain.MustParseTimeOfDay("13:00"),
		Reason:         "体调不良",
		Status:         domain.RequestStatusPending,
	}
}

func decode(t *testing.T, p published) (string, string, domain.RequestMailData) {
	t.Helper()

	var raw struct {
		Type string                 `json:"type"`
		To   string                 `json:"to"`
		Data domain.RequestMailData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(p.msg.Body, &raw))
	assert.Equal(t, "application/json", p.msg.ContentType)
	return raw.Type, raw.To, raw.Data
}

func TestNotifyCreatedExchangeGoesToCounterparty(t *testing.T) {
	ch := &fakeChannel{}
	p := New(ch, "notification_queue", time.Second, newDirectory())

	bob := int64(2)
	err := p.Notify(context.Background(), domain.Notification{
		Event:   domain.NotificationRequestCreated,
		Request: request(domain.RequestKindExchange, 1, &bob),
	})
	require.NoError(t, err)
	require.Len(t, ch.sent, 1)

	assert.Equal(t, "notification_queue", ch.sent[0].key)
	typ, to, data := decode(t, ch.sent[0])
	assert.Equal(t, "request_created", typ)
	assert.Equal(t, "bob@example.com", to)
	assert.Equal(t, "Bob", data.FullName)
	assert.Equal(t, "Alice", data.RequesterName)
	assert.Equal(t, "Bob", data.CounterpartyName)
	assert.Equal(t, "2025-03-12", data.Date)
	assert.Equal(t, "09:00-13:00", data.TimeRange)
	assert.Equal(t, "exchange", data.Kind)
}

func TestNotifyCreatedDeletionGoesToOtherManagers(t *testing.T) {
	ch := &fakeChannel{}
	p := New(ch, "q", time.Second, newDirectory())

	err := p.Notify(context.Background(), domain.Notification{
		Event:   domain.NotificationRequestCreated,
		Request: request(domain.RequestKindDeletion, 3, nil),
	})
	require.NoError(t, err)
	require.Len(t, ch.sent, 1)

	_, to, data := decode(t, ch.sent[0])
	assert.Equal(t, "ken@example.com", to)
	assert.Equal(t, "Mika", data.RequesterName)
	assert.Empty(t, data.CounterpartyName)
}

func TestNotifyResultGoesToRequester(t *testing.T) {
	for _, event := range []domain.NotificationEvent{
		domain.NotificationRequestApproved,
		domain.NotificationRequestRejected,
	} {
		t.Run(string(event), func(t *testing.T) {
			ch := &fakeChannel{}
			p := New(ch, "q", time.Second, newDirectory())

			bob := int64(2)
			require.NoError(t, p.Notify(context.Background(), domain.Notification{
				Event:   event,
				Request: request(domain.RequestKindExchange, 1, &bob),
			}))
			require.Len(t, ch.sent, 1)

			typ, to, _ := decode(t, ch.sent[0])
			assert.Equal(t, string(event), typ)
			assert.Equal(t, "alice@example.com", to)
		})
	}
}

func TestNotifyCancelledGoesToCounterparty(t *testing.T) {
	ch := &fakeChannel{}
	p := New(ch, "q", time.Second, newDirectory())

	bob := int64(2)
	require.NoError(t, p.Notify(context.Background(), domain.Notification{
		Event:   domain.NotificationRequestCancelled,
		Request: request(domain.RequestKindExchange, 1, &bob),
	}))
	require.Len(t, ch.sent, 1)

	_, to, _ := decode(t, ch.sent[0])
	assert.Equal(t, "bob@example.com", to)
}

func TestNotifyMissingEmployeeIsSkipped(t *testing.T) {
	ch := &fakeChannel{}
	p := New(ch, "q", time.Second, newDirectory())

	ghost := int64(99)
	require.NoError(t, p.Notify(context.Background(), domain.Notification{
		Event:   domain.NotificationRequestCreated,
		Request: request(domain.RequestKindAddition, 3, &ghost),
	}))
	assert.Empty(t, ch.sent)
}

func TestNotifyPublishFailure(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	p := New(ch, "q", time.Second, newDirectory())

	bob := int64(2)
	err := p.Notify(context.Background(), domain.Notification{
		Event:   domain.NotificationRequestCreated,
		Request: request(domain.RequestKindExchange, 1, &bob),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bob@example.com")
}

func TestNotifyUnknownEvent(t *testing.T) {
	p := New(&fakeChannel{}, "q", time.Second, newDirectory())

	err := p.Notify(context.Background(), domain.Notification{
		Event:   "request_exploded",
		Request: request(domain.RequestKindExchange, 1, nil),
	})
	assert.Error(t, err)
}
