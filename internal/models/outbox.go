package models

import "time"

// OutboxStatus tracks delivery state of an outbox entry.
type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "pending"
	OutboxDelivered OutboxStatus = "delivered"
	OutboxFailed    OutboxStatus = "failed"
)

// OutboxKind names the delivery types.
const (
	OutboxKindVerificationMail = "verification_mail"
	OutboxKindInviteMail       = "invite_mail"
)

// OutboxEntry is a durable delivery record written alongside the mutation
// that requires it. Workers pick up pending rows and retry with backoff;
// exhausted rows stay behind as failed with the last error attached.
type OutboxEntry struct {
	ID            string       `db:"id" json:"id"`
	Kind          string       `db:"kind" json:"kind"`
	Payload       []byte       `db:"payload" json:"payload"`
	Status        OutboxStatus `db:"status" json:"status"`
	Attempts      int          `db:"attempts" json:"attempts"`
	LastError     *string      `db:"last_error" json:"last_error,omitempty"`
	NextAttemptAt time.Time    `db:"next_attempt_at" json:"next_attempt_at"`
	DeliveredAt   *time.Time   `db:"delivered_at" json:"delivered_at,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
}

// MailPayload is the payload stored for mail outbox entries.
type MailPayload struct {
	ToName    string `json:"to_name"`
	ToAddress string `json:"to_address"`
	Subject   string `json:"subject"`
	TextBody  string `json:"text_body"`
	HTMLBody  string `json:"html_body,omitempty"`
}
