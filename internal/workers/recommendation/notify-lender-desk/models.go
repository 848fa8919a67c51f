// internal/workers/recommendation/notify-lender-desk/models.go
package notifylenderdesk

import "lender-match-workers/internal/models"

const (
	NotificationType = "no_eligible_products"

	ChannelEmail = "email"
	ChannelSMS   = "sms"

	StatusSent     = "sent"
	StatusFailed   = "failed"
	StatusDisabled = "disabled"
)

type Input struct {
	ApplicationID  string                        `json:"applicationId"`
	BusinessName   string                        `json:"businessName,omitempty"`
	ContactEmail   string                        `json:"contactEmail,omitempty"`
	FormData       models.RecommendationFormData `json:"formData"`
	MonthlyRevenue float64                       `json:"monthlyRevenue"`
	EmptyReason    string                        `json:"emptyReason,omitempty"`
	TotalEvaluated int                           `json:"totalEvaluated"`
}

type Output struct {
	NotificationID string                `json:"notificationId"`
	Status         string                `json:"status"`
	Channels       []string              `json:"channels"`
	SentAt         string                `json:"sentAt"`
	Deliveries     []models.Notification `json:"deliveries,omitempty"`
}
