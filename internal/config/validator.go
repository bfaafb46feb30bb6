package config

import (
	"fmt"
	"strings"
)

// SecretValidator checks credentials in the loaded config. Problems that are
// errors in production are downgraded to warnings elsewhere.
type SecretValidator struct {
	config   *Config
	errors   []string
	warnings []string
}

func NewSecretValidator(cfg *Config) *SecretValidator {
	return &SecretValidator{
		config:   cfg,
		errors:   []string{},
		warnings: []string{},
	}
}

// Validate returns an error listing every blocking problem. Warnings are
// available through Warnings afterwards.
func (v *SecretValidator) Validate() error {
	isProduction := v.config.App.IsProduction()

	v.validateDatabasePassword(isProduction)
	v.validateWebhookSecret(isProduction)
	v.validateTelegram(isProduction)
	v.validateFCM(isProduction)
	v.validateSMTP()

	if len(v.errors) > 0 {
		return fmt.Errorf("secret validation failed:\n%s", strings.Join(v.errors, "\n"))
	}
	return nil
}

// Warnings returns the non-blocking findings of the last Validate call.
func (v *SecretValidator) Warnings() []string {
	return v.warnings
}

func (v *SecretValidator) validateDatabasePassword(isProduction bool) {
	if v.config.Database.Driver == "sqlite3" || v.config.Database.DSN != "" {
		return
	}
	password := v.config.Database.Password

	if password == "" {
		v.addWarning("database.password is not set")
		return
	}
	if password == "hesk_password" {
		v.addError("database.password is using the default example value", isProduction)
		return
	}
	if len(password) < 12 {
		v.addWarning("database.password should be at least 12 characters long")
	}
}

func (v *SecretValidator) validateWebhookSecret(isProduction bool) {
	wh := v.config.Push.Webhook
	if !v.config.Push.Enabled || !wh.Enabled {
		return
	}
	if wh.Secret == "" {
		v.addError("push.webhook.secret is required when webhooks are enabled", isProduction)
		return
	}
	if !isProduction && (strings.HasPrefix(wh.Secret, "dev-") || strings.HasPrefix(wh.Secret, "test-")) {
		return
	}
	if len(wh.Secret) < 16 {
		v.addWarning("push.webhook.secret should be at least 16 characters long")
	}
}

func (v *SecretValidator) validateTelegram(isProduction bool) {
	tg := v.config.Push.Telegram
	if !v.config.Push.Enabled || !tg.Enabled {
		return
	}
	if tg.Token == "" {
		v.addError("push.telegram.token is required when telegram is enabled", isProduction)
	}
	if tg.ChatID == "" {
		v.addError("push.telegram.chat_id is required when telegram is enabled", isProduction)
	}
}

func (v *SecretValidator) validateFCM(isProduction bool) {
	fcm := v.config.Push.FCM
	if !v.config.Push.Enabled || !fcm.Enabled {
		return
	}
	if fcm.ProjectID == "" {
		v.addError("push.fcm.project_id is required when fcm is enabled", isProduction)
	}
	if fcm.Topic == "" && !fcm.DeviceTokens {
		v.addWarning("push.fcm has neither a topic nor device_tokens; nothing will be sent")
	}
}

func (v *SecretValidator) validateSMTP() {
	if !v.config.Email.Enabled {
		return
	}
	if v.config.Email.SMTP.User != "" && v.config.Email.SMTP.Password == "" {
		v.addWarning("email.smtp.user is set without email.smtp.password")
	}
	if v.config.Email.SMTP.TLS == "none" {
		v.addWarning("email.smtp.tls is none; credentials are sent in clear text")
	}
}

func (v *SecretValidator) addError(message string, isProduction bool) {
	if isProduction {
		v.errors = append(v.errors, "   "+message)
	} else {
		v.warnings = append(v.warnings, "   "+message)
	}
}

func (v *SecretValidator) addWarning(message string) {
	v.warnings = append(v.warnings, "   "+message)
}

// ValidateSecrets runs a SecretValidator and returns its warnings.
func ValidateSecrets(cfg *Config) ([]string, error) {
	validator := NewSecretValidator(cfg)
	err := validator.Validate()
	return validator.Warnings(), err
}
