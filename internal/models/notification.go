// internal/models/notification.go
package models

// Notification is one delivery attempt to the lending desk.
type Notification struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`    // "no_eligible_products"
	Channel   string                 `json:"channel"` // "email", "sms"
	Status    string                 `json:"status"`  // "sent", "failed", "disabled"
	Recipient string                 `json:"recipient"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	SentAt    string                 `json:"sentAt,omitempty"`
	Error     string                 `json:"error,omitempty"`
}
