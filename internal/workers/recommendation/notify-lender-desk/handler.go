// internal/workers/recommendation/notify-lender-desk/handler.go
package notifylenderdesk

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"

	awsx "lender-match-workers/internal/common/aws"
	"lender-match-workers/internal/common/errors"
	"lender-match-workers/internal/common/logger"
	"lender-match-workers/internal/common/metrics"
	"lender-match-workers/internal/common/validation"
	"lender-match-workers/internal/models"
	"lender-match-workers/internal/recommendation"
)

const (
	TaskType = "notify-lender-desk"
)

// EmailSender is satisfied by *aws.Mailer.
type EmailSender interface {
	Send(ctx context.Context, msg awsx.Email) (string, error)
}

// SMSPublisher is satisfied by *aws.Publisher.
type SMSPublisher interface {
	Publish(ctx context.Context, subject, message string) (string, error)
}

type Handler struct {
	config       *Config
	email        EmailSender
	sms          SMSPublisher
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
	now          func() time.Time
}

// NewHandler builds SES and SNS clients for the enabled channels.
func NewHandler(config *Config, log logger.Logger) (*Handler, error) {
	var email EmailSender
	var sms SMSPublisher

	if config.EmailEnabled {
		client, err := awsx.NewSESClient(context.Background(), config.AWSRegion)
		if err != nil {
			return nil, fmt.Errorf("ses client: %w", err)
		}
		email = awsx.NewMailer(client, config.FromEmail)
	}
	if config.SMSEnabled {
		client, err := awsx.NewSNSClient(context.Background(), config.AWSRegion)
		if err != nil {
			return nil, fmt.Errorf("sns client: %w", err)
		}
		sms = awsx.NewPublisher(client, config.DeskTopicARN)
	}
	return NewHandlerWithSenders(config, email, sms, log), nil
}

// NewHandlerWithSenders takes prebuilt senders. A nil sender disables its channel.
func NewHandlerWithSenders(config *Config, email EmailSender, sms SMSPublisher, log logger.Logger) *Handler {
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		email:        email,
		sms:          sms,
		errorHandler: errors.NewErrorHandler(l),
		logger:       l,
		now:          time.Now,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	res, err := inputSchema.Validate(job.Variables)
	if err == nil && !res.Valid {
		err = errors.NewInvalidInputError(res.Error())
	}
	var input Input
	if err == nil {
		err = json.Unmarshal([]byte(job.Variables), &input)
	}
	if err != nil {
		if _, ok := errors.AsStandardError(err); !ok {
			err = errors.NewInvalidInputError(fmt.Sprintf("parse input: %v", err))
		}
		h.fail(client, job, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.fail(client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

// Execute notifies the lending desk on every enabled channel. It fails only
// when every attempted channel failed.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	out := &Output{
		NotificationID: uuid.New().String(),
		Channels:       []string{},
		SentAt:         h.now().UTC().Format(time.RFC3339),
	}
	subject, body := renderMessage(input)

	var errs []error
	if h.email != nil && h.config.DeskEmail != "" {
		n := h.delivery(ChannelEmail, h.config.DeskEmail, input)
		htmlBody := "<pre>" + html.EscapeString(body) + "</pre>"
		if _, err := h.email.Send(ctx, awsx.Email{To: []string{h.config.DeskEmail}, Subject: subject, Text: body, Html: htmlBody}); err != nil {
			n.Status, n.Error = StatusFailed, err.Error()
			errs = append(errs, err)
		} else {
			out.Channels = append(out.Channels, ChannelEmail)
		}
		out.Deliveries = append(out.Deliveries, n)
	}

	if h.sms != nil {
		n := h.delivery(ChannelSMS, h.config.DeskTopicARN, input)
		if _, err := h.sms.Publish(ctx, subject, smsText(input)); err != nil {
			n.Status, n.Error = StatusFailed, err.Error()
			errs = append(errs, err)
		} else {
			out.Channels = append(out.Channels, ChannelSMS)
		}
		out.Deliveries = append(out.Deliveries, n)
	}

	switch {
	case len(out.Deliveries) == 0:
		out.Status = StatusDisabled
		h.logger.Warn("no notification channel enabled", map[string]interface{}{"applicationId": input.ApplicationID})
	case len(out.Channels) == 0:
		return nil, errors.NewNotificationSendFailedError(strings.Join(attempted(out.Deliveries), ","), stderrors.Join(errs...))
	default:
		out.Status = StatusSent
		for _, err := range errs {
			h.logger.Warn("notification channel failed", map[string]interface{}{"applicationId": input.ApplicationID, "error": err})
		}
	}

	h.logger.Info("lender desk notified", map[string]interface{}{
		"applicationId":  input.ApplicationID,
		"notificationId": out.NotificationID,
		"channels":       out.Channels,
	})
	return out, nil
}

func (h *Handler) delivery(channel, recipient string, input *Input) models.Notification {
	return models.Notification{
		ID:        uuid.New().String(),
		Type:      NotificationType,
		Channel:   channel,
		Status:    StatusSent,
		Recipient: recipient,
		Payload:   map[string]interface{}{"applicationId": input.ApplicationID},
		SentAt:    h.now().UTC().Format(time.RFC3339),
	}
}

func attempted(deliveries []models.Notification) []string {
	channels := make([]string, len(deliveries))
	for i, d := range deliveries {
		channels[i] = d.Channel
	}
	return channels
}

func renderMessage(input *Input) (string, string) {
	name := input.BusinessName
	if name == "" {
		name = "application " + input.ApplicationID
	}
	subject := fmt.Sprintf("No eligible lender products for %s", name)

	reason := "no product matched the applicant profile"
	if input.EmptyReason == recommendation.EmptyReasonCatalogEmpty {
		reason = "the lender catalog was empty"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Application: %s\n", input.ApplicationID)
	if input.BusinessName != "" {
		fmt.Fprintf(&b, "Business: %s\n", input.BusinessName)
	}
	if input.ContactEmail != "" {
		fmt.Fprintf(&b, "Contact: %s\n", input.ContactEmail)
	}
	fmt.Fprintf(&b, "Headquarters: %s\n", recommendation.NormalizeCountry(input.FormData.Headquarters))
	fmt.Fprintf(&b, "Funding requested: $%.0f\n", input.FormData.FundingAmount)
	if input.FormData.LookingFor != "" {
		fmt.Fprintf(&b, "Looking for: %s\n", input.FormData.LookingFor)
	}
	if input.FormData.FundsPurpose != "" {
		fmt.Fprintf(&b, "Purpose: %s\n", input.FormData.FundsPurpose)
	}
	fmt.Fprintf(&b, "Monthly revenue: $%.0f\n", input.MonthlyRevenue)
	fmt.Fprintf(&b, "Products evaluated: %d\n", input.TotalEvaluated)
	fmt.Fprintf(&b, "Reason: %s\n", reason)
	return subject, b.String()
}

func smsText(input *Input) string {
	return fmt.Sprintf("No lender match: app %s, %s, $%.0f requested",
		input.ApplicationID, recommendation.NormalizeCountry(input.FormData.Headquarters), input.FormData.FundingAmount)
}

// ValidateVariables checks raw job variables against the input schema.
func ValidateVariables(variables string) (*validation.ValidationResult, error) {
	return inputSchema.Validate(variables)
}

func (h *Handler) fail(client worker.JobClient, job entities.Job, err error) {
	stdErr := errors.Normalize(err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
	h.errorHandler.HandleJobError(context.Background(), client, job, stdErr)
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}
