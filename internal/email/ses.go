package email

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// sesAPI is the slice of the SES client the service uses
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// EmailService handles sending emails via AWS SES
type EmailService struct {
	client    sesAPI
	fromEmail string
	fromName  string
	baseURL   string
}

// NewEmailService creates a new email service using AWS SES
func NewEmailService(region, fromEmail, fromName, baseURL string) (*EmailService, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newWithClient(ses.NewFromConfig(cfg), fromEmail, fromName, baseURL), nil
}

func newWithClient(client sesAPI, fromEmail, fromName, baseURL string) *EmailService {
	return &EmailService{
		client:    client,
		fromEmail: fromEmail,
		fromName:  fromName,
		baseURL:   baseURL,
	}
}

// ResetURL is the web page that consumes a reset token
func (e *EmailService) ResetURL(resetToken string) string {
	return fmt.Sprintf("%s/reset-password?token=%s", e.baseURL, url.QueryEscape(resetToken))
}

// SendPasswordResetEmail sends a password reset email with the reset token.
// The web app posts the token to /api/v1/auth/password-reset/confirm.
func (e *EmailService) SendPasswordResetEmail(ctx context.Context, toEmail, displayName, resetToken string) error {
	resetURL := e.ResetURL(resetToken)
	if displayName == "" {
		displayName = "there"
	}

	subject := "Reset your Daybook password"
	htmlBody := fmt.Sprintf(`
		<!DOCTYPE html>
		<html>
		<head>
			<meta charset="UTF-8">
			<style>
				body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; }
				.container { max-width: 600px; margin: 0 auto; padding: 20px; }
				.button { display: inline-block; padding: 12px 24px; background-color: #4f46e5; color: white; text-decoration: none; border-radius: 6px; margin: 20px 0; }
			</style>
		</head>
		<body>
			<div class="container">
				<h1>Hi %s,</h1>
				<p>Someone asked to reset the password on your Daybook account.</p>
				<p>The link below works once and expires in 1 hour.</p>
				<a href="%s" class="button">Choose a new password</a>
				<p style="word-break: break-all; color: #666;">%s</p>
				<p>If this wasn't you, ignore this email and your password stays the same.</p>
			</div>
		</body>
		</html>
	`, displayName, resetURL, resetURL)

	textBody := fmt.Sprintf(`Hi %s,

Someone asked to reset the password on your Daybook account.
The link below works once and expires in 1 hour.

%s

If this wasn't you, ignore this email and your password stays the same.
`, displayName, resetURL)

	from := e.fromEmail
	if e.fromName != "" {
		from = fmt.Sprintf("%s <%s>", e.fromName, e.fromEmail)
	}

	input := &ses.SendEmailInput{
		Source: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data:    aws.String(htmlBody),
					Charset: aws.String("UTF-8"),
				},
				Text: &types.Content{
					Data:    aws.String(textBody),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	if _, err := e.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("failed to send password reset email: %w", err)
	}

	return nil
}
