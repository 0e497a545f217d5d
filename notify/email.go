package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wneessen/go-mail"

	"github.com/azure/tagged-resource-cleanup/config"
	"github.com/azure/tagged-resource-cleanup/types"
)

const (
	DefaultSendTimeout = 100 * time.Second
	implicitTLSPort    = 465
)

type INotifier interface {
	Notify(ctx context.Context, message types.NotificationMessage) types.NotificationResult
}

type IMailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// EmailNotifier delivers one plain-text email per notification. Delivery failures are
// logged and reported in the result, never returned.
type EmailNotifier struct {
	Smtp        config.SmtpConfig
	SendTimeout time.Duration
	NewSender   func(smtpConfig config.SmtpConfig, timeout time.Duration) (IMailSender, error)
	Logger      *logrus.Logger
}

func NewEmailNotifier(smtpConfig config.SmtpConfig, logger *logrus.Logger) *EmailNotifier {
	return &EmailNotifier{
		Smtp:        smtpConfig,
		SendTimeout: DefaultSendTimeout,
		NewSender:   NewSmtpSender,
		Logger:      logger,
	}
}

// NewSmtpSender authenticates with username and password over a mandatory TLS
// connection: STARTTLS on submission ports, implicit TLS on 465.
func NewSmtpSender(smtpConfig config.SmtpConfig, timeout time.Duration) (IMailSender, error) {
	options := []mail.Option{
		mail.WithPort(smtpConfig.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(smtpConfig.Username),
		mail.WithPassword(smtpConfig.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTimeout(timeout),
	}
	if smtpConfig.Port == implicitTLSPort {
		options = append(options, mail.WithSSL())
	}
	return mail.NewClient(smtpConfig.Server, options...)
}

func (notifier *EmailNotifier) Notify(ctx context.Context, message types.NotificationMessage) types.NotificationResult {
	result := types.NotificationResult{Recipient: message.Recipient}

	mailMessage, err := notifier.buildMessage(message)
	if err != nil {
		result.Err = err
		notifier.Logger.Errorf("Error sending email alert: %v", err)
		return result
	}

	sender, err := notifier.NewSender(notifier.Smtp, notifier.SendTimeout)
	if err != nil {
		result.Err = fmt.Errorf("creating smtp client for %s:%d: %w", notifier.Smtp.Server, notifier.Smtp.Port, err)
		notifier.Logger.Errorf("Error sending email alert: %v", result.Err)
		return result
	}

	if err := sender.DialAndSendWithContext(ctx, mailMessage); err != nil {
		result.Err = err
		var sendError *mail.SendError
		if errors.As(err, &sendError) {
			result.StatusCode = sendError.ErrorCode()
			result.Temporary = sendError.IsTemp()
		}
		notifier.logSendError(err)
		return result
	}

	result.Delivered = true
	notifier.Logger.Infof("Email alert sent to %s", message.Recipient)
	return result
}

func (notifier *EmailNotifier) buildMessage(message types.NotificationMessage) (*mail.Msg, error) {
	mailMessage := mail.NewMsg()
	if err := mailMessage.From(notifier.Smtp.Username); err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", notifier.Smtp.Username, err)
	}
	if err := mailMessage.To(message.Recipient); err != nil {
		return nil, fmt.Errorf("invalid recipient address %q: %w", message.Recipient, err)
	}
	mailMessage.Subject(message.Subject)
	mailMessage.SetBodyString(mail.TypeTextPlain, message.Body)
	return mailMessage, nil
}

func (notifier *EmailNotifier) logSendError(err error) {
	var sendError *mail.SendError
	if errors.As(err, &sendError) {
		notifier.Logger.WithFields(logrus.Fields{
			"smtpStatusCode": sendError.ErrorCode(),
			"temporary":      sendError.IsTemp(),
			"reason":         sendError.Reason.String(),
		}).Errorf("Error sending email alert: %v", err)
		if inner := errors.Unwrap(err); inner != nil {
			notifier.Logger.Errorf("Inner Exception: %v", inner)
		}
		return
	}

	notifier.Logger.Errorf("Error sending email alert: %v", err)
	if inner := errors.Unwrap(err); inner != nil {
		notifier.Logger.Errorf("Inner Exception: %v", inner)
	}
}
