package mail

import (
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/tech-arch1tect/authkit/config"
	"github.com/tech-arch1tect/authkit/services/logging"
)

// Client abstracts the SMTP transport so tests can substitute delivery.
type Client interface {
	DialAndSend(messages ...*mail.Msg) error
}

// Service sends transactional mail over SMTP. It satisfies the Mailer
// interface consumed by the auth service.
type Service struct {
	config *config.MailConfig
	client Client
	logger *logging.Service
}

func NewService(cfg *config.MailConfig, logger *logging.Service) (*Service, error) {
	if cfg.FromAddress == "" {
		return nil, fmt.Errorf("MAIL_FROM_ADDRESS is required")
	}

	clientOpts := []mail.Option{
		mail.WithPort(cfg.Port),
	}

	if cfg.Username != "" {
		clientOpts = append(clientOpts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username))
	}
	if cfg.Password != "" {
		clientOpts = append(clientOpts, mail.WithPassword(cfg.Password))
	}

	switch cfg.Encryption {
	case "ssl":
		clientOpts = append(clientOpts, mail.WithSSL())
	case "none":
		clientOpts = append(clientOpts, mail.WithTLSPortPolicy(mail.NoTLS))
	default:
		// "tls" and "starttls" both negotiate on the submission port
		clientOpts = append(clientOpts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	}

	client, err := mail.NewClient(cfg.Host, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail client: %w", err)
	}

	logger.Info("mail service initialized",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("encryption", cfg.Encryption),
		zap.String("from_address", cfg.FromAddress))

	return &Service{
		config: cfg,
		client: client,
		logger: logger,
	}, nil
}

// NewServiceWithClient wires an explicit transport, bypassing SMTP client
// construction. Intended for tests.
func NewServiceWithClient(cfg *config.MailConfig, logger *logging.Service, client Client) (*Service, error) {
	if cfg.FromAddress == "" {
		return nil, fmt.Errorf("MAIL_FROM_ADDRESS is required")
	}
	return &Service{
		config: cfg,
		client: client,
		logger: logger,
	}, nil
}

func (s *Service) newMessage() (*mail.Msg, error) {
	message := mail.NewMsg()

	fromAddr := s.config.FromAddress
	if s.config.FromName != "" {
		fromAddr = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.FromAddress)
	}

	if err := message.From(fromAddr); err != nil {
		return nil, fmt.Errorf("failed to set FROM address: %w", err)
	}
	return message, nil
}

// Send delivers a plain text message to a single recipient.
func (s *Service) Send(to, subject, body string) error {
	message, err := s.newMessage()
	if err != nil {
		return err
	}
	if err := message.To(to); err != nil {
		return fmt.Errorf("failed to set TO address: %w", err)
	}

	message.Subject(subject)
	message.SetBodyString(mail.TypeTextPlain, body)

	start := time.Now()
	if err := s.client.DialAndSend(message); err != nil {
		s.logger.Error("failed to send email",
			zap.Error(err),
			zap.Duration("attempt_duration", time.Since(start)))
		return err
	}

	s.logger.Info("email sent",
		zap.String("subject", subject),
		zap.Duration("send_duration", time.Since(start)))
	return nil
}
