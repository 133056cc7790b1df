package main

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"

	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/domain"
	"github.com/wneessen/go-mail"
)

//go:embed templates/*.html
var templatesFS embed.FS

type mailTemplate struct {
	subject string
	tmpl    *template.Template
	data    func() any // 返回用于反序列化 MailMessage.Data 的零值指针
}

func requestData() any { return &domain.RequestMailData{} }

func parseTemplates() (map[string]mailTemplate, error) {
	specs := []struct {
		mailType string
		file     string
		subject  string
		data     func() any
	}{
		{domain.MailTypeCreateEmployee, "new_account_email.html", "ECNC 换班系统 - 账户信息", func() any { return &domain.CreateEmployeeMailData{} }},
		{string(domain.NotificationRequestCreated), "request_created_email.html", "ECNC 换班系统 - 新的申请", requestData},
		{string(domain.NotificationRequestApproved), "request_result_email.html", "ECNC 换班系统 - 申请已通过", requestData},
		{string(domain.NotificationRequestRejected), "request_result_email.html", "ECNC 换班系统 - 申请被拒绝", requestData},
		{string(domain.NotificationRequestCancelled), "request_cancelled_email.html", "ECNC 换班系统 - 申请已撤回", requestData},
	}

	templates := make(map[string]mailTemplate, len(specs))
	for _, spec := range specs {
		tmpl, err := template.ParseFS(templatesFS, "templates/"+spec.file)
		if err != nil {
			return nil, fmt.Errorf("无法解析邮件模板 %s: %w", spec.file, err)
		}
		templates[spec.mailType] = mailTemplate{subject: spec.subject, tmpl: tmpl, data: spec.data}
	}

	return templates, nil
}

// envelope 与 domain.MailMessage 相同，只是 Data 延迟到确定类型之后再解析
type envelope struct {
	Type string          `json:"type"`
	To   string          `json:"to"`
	Data json.RawMessage `json:"data"`
}

// buildMessage 根据队列中的消息构建邮件，返回的错误都说明消息本身有问题，不应该重新入队
func buildMessage(templates map[string]mailTemplate, from string, body []byte) (*mail.Msg, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("邮件信息反序列化失败: %w", err)
	}

	t, ok := templates[env.Type]
	if !ok {
		return nil, fmt.Errorf("不支持的邮件类型 %q", env.Type)
	}

	data := t.data()
	if err := json.Unmarshal(env.Data, data); err != nil {
		return nil, fmt.Errorf("邮件数据反序列化失败: %w", err)
	}

	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("无法设置邮件发件人: %w", err)
	}
	if err := msg.To(env.To); err != nil {
		return nil, fmt.Errorf("无法设置邮件收件人: %w", err)
	}
	if err := msg.SetBodyHTMLTemplate(t.tmpl, data); err != nil {
		return nil, fmt.Errorf("无法设置邮件正文: %w", err)
	}
	msg.Subject(t.subject)

	return msg, nil
}
