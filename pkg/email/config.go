package email

import "fmt"

// Provider names accepted by New.
const (
	ProviderPostmark = "postmark"
	ProviderSMTP     = "smtp"
	ProviderDev      = "dev"
)

// Config holds email service configuration.
// Provider selects the transport; only the settings of the chosen provider
// are required.
type Config struct {
	Provider             string `env:"EMAIL_PROVIDER" envDefault:"dev"`
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SMTPHost             string `env:"SMTP_HOST"`
	SMTPPort             int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername         string `env:"SMTP_USERNAME"`
	SMTPPassword         string `env:"SMTP_PASSWORD"`
	DevDir               string `env:"EMAIL_DEV_DIR" envDefault:"./tmp/emails"`
	SenderEmail          string `env:"SENDER_EMAIL" envDefault:"notifications@localhost.dev"`
	SupportEmail         string `env:"SUPPORT_EMAIL" envDefault:"support@localhost.dev"`
}

// New builds the EmailSender selected by cfg.Provider.
func New(cfg Config) (EmailSender, error) {
	switch cfg.Provider {
	case ProviderPostmark:
		s, err := NewPostmarkClient(cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	case ProviderSMTP:
		return NewSMTPClient(cfg)
	case ProviderDev, "":
		return NewDevSender(cfg.DevDir), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

func validateIdentity(cfg Config) error {
	if cfg.SenderEmail == "" {
		return fmt.Errorf("%w: SenderEmail is required", ErrInvalidConfig)
	}
	if !emailRegex.MatchString(cfg.SenderEmail) {
		return fmt.Errorf("%w: SenderEmail must be a valid email address", ErrInvalidConfig)
	}
	if cfg.SupportEmail == "" {
		return fmt.Errorf("%w: SupportEmail is required", ErrInvalidConfig)
	}
	if !emailRegex.MatchString(cfg.SupportEmail) {
		return fmt.Errorf("%w: SupportEmail must be a valid email address", ErrInvalidConfig)
	}
	return nil
}
