package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/harborview/civicwatch/internal/models"
)

// Alerter delivers notifications for high-severity security events. Delivery
// is fire-and-forget from the caller's perspective; an alert failure never
// fails the operation that raised the event.
type Alerter interface {
	SendSecurityAlert(ctx context.Context, event *models.SecurityEvent) error
}

// AWSSESAlerter sends security alerts using AWS SES
type AWSSESAlerter struct {
	sesClient   *ses.Client
	fromAddress string
	toAddress   string
	logger      *slog.Logger
}

// NewAWSSESAlerter creates a new AWS SES alerter
func NewAWSSESAlerter(region, fromAddress, toAddress string, logger *slog.Logger) (*AWSSESAlerter, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESAlerter{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		toAddress:   toAddress,
		logger:      logger,
	}, nil
}

// SendSecurityAlert notifies the operations address about one event.
func (a *AWSSESAlerter) SendSecurityAlert(ctx context.Context, event *models.SecurityEvent) error {
	subject := fmt.Sprintf("[%s] security event: %s", strings.ToUpper(event.Severity), event.EventType)

	var details strings.Builder
	keys := make([]string, 0, len(event.Details))
	for key := range event.Details {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&details, "  %s: %v\n", key, event.Details[key])
	}

	actor := "unknown"
	if event.ActorID != nil {
		actor = *event.ActorID
	}

	textBody := fmt.Sprintf(`Security event recorded.

Event:      %s
Severity:   %s
Event ID:   %s
Actor:      %s
Origin:     %s
Client:     %s
Occurred:   %s

Details:
%s`,
		event.EventType, event.Severity, event.ID, actor,
		event.IPAddress, event.UserAgent,
		event.OccurredAt.UTC().Format("2006-01-02 15:04:05 UTC"),
		details.String(),
	)

	input := &ses.SendEmailInput{
		Source: aws.String(a.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{a.toAddress},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := a.sesClient.SendEmail(ctx, input)
	if err != nil {
		a.logger.Error("failed to send security alert via SES",
			slog.String("event_type", event.EventType),
			slog.Any("error", err))
		return fmt.Errorf("failed to send alert: %w", err)
	}

	a.logger.Info("security alert sent",
		slog.String("event_type", event.EventType),
		slog.String("message_id", *result.MessageId))

	return nil
}
