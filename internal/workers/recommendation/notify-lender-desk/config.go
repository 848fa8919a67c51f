// internal/workers/recommendation/notify-lender-desk/config.go
package notifylenderdesk

import "time"

type Config struct {
	Timeout      time.Duration
	EmailEnabled bool
	SMSEnabled   bool
	FromEmail    string
	DeskEmail    string
	DeskTopicARN string
	AWSRegion    string
}
