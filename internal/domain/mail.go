package domain

type MailMessage struct {
	Type string `json:"type"`
	To   string `json:"to"`
	Data any    `json:"data"`
}

const MailTypeCreateEmployee = "create_employee"

type CreateEmployeeMailData struct {
	FullName string `json:"fullName"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type NotificationEvent string

const (
	NotificationRequestCreated   NotificationEvent = "request_created"
	NotificationRequestApproved  NotificationEvent = "request_approved"
	NotificationRequestRejected  NotificationEvent = "request_rejected"
	NotificationRequestCancelled NotificationEvent = "request_cancelled"
)

type Notification struct {
	Event   NotificationEvent
	Request *ApprovalRequest
}

type RequestMailData struct {
	FullName         string `json:"fullName"`
	Kind             string `json:"kind"`
	RequesterName    string `json:"requesterName"`
	CounterpartyName string `json:"counterpartyName"`
	Date             string `json:"date"`
	TimeRange        string `json:"timeRange"`
	Status           string `json:"status"`
	Reason           string `json:"reason"`
}
