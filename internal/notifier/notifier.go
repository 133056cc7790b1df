// Package notifier 把申请状态变化和账号邮件发布到 RabbitMQ，由 cmd/mail 消费并发送邮件
package notifier

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/domain"
)

// Channel 是 *amqp.Channel 中发布消息所需的部分
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type Directory interface {
	GetEmployeeByID(ctx context.Context, id int64) (*domain.Employee, error)
	GetManagers(ctx context.Context) ([]*domain.Employee, error)
}

type Publisher struct {
	channel   Channel
	queue     string
	timeout   time.Duration
	directory Directory
}

func New(channel Channel, queue string, timeout time.Duration, directory Directory) *Publisher {
	return &Publisher{
		channel:   channel,
		queue:     queue,
		timeout:   timeout,
		directory: directory,
	}
}

func (p *Publisher) PublishMail(ctx context.Context, msg domain.MailMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	return p.channel.PublishWithContext(
		ctx,
		"",
		p.queue,
		true,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

// Notify 为每个收件人发布一封邮件，部分失败时继续发送其余的并返回合并后的错误
func (p *Publisher) Notify(ctx context.Context, n domain.Notification) error {
	recipients, err := p.recipients(ctx, n)
	if err != nil {
		return err
	}

	data, err := p.mailData(ctx, n)
	if err != nil {
		return err
	}

	var errs []error
	for _, recipient := range recipients {
		personal := data
		personal.FullName = recipient.FullName

		if err := p.PublishMail(ctx, domain.MailMessage{
			Type: string(n.Event),
			To:   recipient.Email,
			Data: personal,
		}); err != nil {
			errs = append(errs, fmt.Errorf("发送给 %s 失败: %w", recipient.Email, err))
		}
	}

	return errors.Join(errs...)
}

// recipients 决定通知的收件人：
// 新申请通知对方（删班申请通知除申请人以外的所有管理者），审批结果通知申请人，撤回通知对方
func (p *Publisher) recipients(ctx context.Context, n domain.Notification) ([]*domain.Employee, error) {
	request := n.Request

	var ids []int64
	switch n.Event {
	case domain.NotificationRequestCreated:
		if request.CounterpartyID == nil {
			managers, err := p.directory.GetManagers(ctx)
			if err != nil {
				return nil, err
			}
			result := make([]*domain.Employee, 0, len(managers))
			for _, m := range managers {
				if m.ID != request.RequesterID {
					result = append(result, m)
				}
			}
			return result, nil
		}
		ids = append(ids, *request.CounterpartyID)
	case domain.NotificationRequestApproved, domain.NotificationRequestRejected:
		ids = append(ids, request.RequesterID)
	case domain.NotificationRequestCancelled:
		if request.CounterpartyID != nil {
			ids = append(ids, *request.CounterpartyID)
		}
	default:
		return nil, fmt.Errorf("未知的通知类型 %q", n.Event)
	}

	result := make([]*domain.Employee, 0, len(ids))
	for _, id := range ids {
		employee, err := p.directory.GetEmployeeByID(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, err
		}
		result = append(result, employee)
	}

	return result, nil
}

func (p *Publisher) mailData(ctx context.Context, n domain.Notification) (domain.RequestMailData, error) {
	request := n.Request
	data := domain.RequestMailData{
		Kind:      string(request.Kind),
		Date:      request.Date.Format(domain.DateLayout),
		TimeRange: request.TimeRange(),
		Status:    string(request.Status),
		Reason:    request.Reason,
	}

	name, err := p.displayName(ctx, request.RequesterID)
	if err != nil {
		return data, err
	}
	data.RequesterName = name

	if request.CounterpartyID != nil {
		name, err := p.displayName(ctx, *request.CounterpartyID)
		if err != nil {
			return data, err
		}
		data.CounterpartyName = name
	}

	return data, nil
}

func (p *Publisher) displayName(ctx context.Context, id int64) (string, error) {
	employee, err := p.directory.GetEmployeeByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Sprintf("#%d", id), nil
		}
		return "", err
	}
	return employee.FullName, nil
}
