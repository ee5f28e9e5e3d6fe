package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/patrickmn/go-cache"
)

// SecretsAPI is the subset of the Secrets Manager client used by Manager
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretValue represents a generic secret value
type SecretValue map[string]string

// plainKey holds the secret string when it is not a JSON object
const plainKey = "value"

// Manager handles AWS Secrets Manager operations with caching
type Manager struct {
	client SecretsAPI
	logger *slog.Logger
	cache  *cache.Cache
}

// NewManager creates a new secrets manager with caching
func NewManager(client SecretsAPI, ttl time.Duration, logger *slog.Logger) *Manager {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		client: client,
		logger: logger,
		cache:  cache.New(ttl, 2*ttl),
	}
}

// GetSecret retrieves a secret from AWS Secrets Manager with caching
func (m *Manager) GetSecret(ctx context.Context, secretName string) (SecretValue, error) {
	if cached, ok := m.cache.Get(secretName); ok {
		m.logger.Debug("secret cache hit", slog.String("secret_name", "[REDACTED]"))
		return cached.(SecretValue), nil
	}

	m.logger.Debug("secret cache miss, fetching from AWS", slog.String("secret_name", "[REDACTED]"))

	result, err := m.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretName),
	})
	if err != nil {
		m.logger.Error("failed to retrieve secret",
			slog.String("error", err.Error()),
			slog.String("secret_name", "[REDACTED]"),
		)
		return nil, fmt.Errorf("failed to retrieve secret: %w", err)
	}

	if result.SecretString == nil {
		return nil, fmt.Errorf("secret has no string value")
	}

	secretValue := SecretValue{}
	if err := json.Unmarshal([]byte(*result.SecretString), &secretValue); err != nil {
		secretValue = SecretValue{plainKey: *result.SecretString}
	}

	m.cache.SetDefault(secretName, secretValue)

	return secretValue, nil
}

// GetWebhookURL returns the Slack webhook URL stored under "url" or as a plain string
func (m *Manager) GetWebhookURL(ctx context.Context, secretName string) (string, error) {
	return m.field(ctx, secretName, "url")
}

// GetSigningKey returns the bearer token signing key stored under "signing_key" or as a plain string
func (m *Manager) GetSigningKey(ctx context.Context, secretName string) ([]byte, error) {
	key, err := m.field(ctx, secretName, "signing_key")
	if err != nil {
		return nil, err
	}
	return []byte(key), nil
}

func (m *Manager) field(ctx context.Context, secretName, name string) (string, error) {
	secretValue, err := m.GetSecret(ctx, secretName)
	if err != nil {
		return "", err
	}
	if v := secretValue[name]; v != "" {
		return v, nil
	}
	if v := secretValue[plainKey]; v != "" {
		return v, nil
	}
	return "", fmt.Errorf("secret missing required field %q", name)
}

// ClearCache clears all cached secrets
func (m *Manager) ClearCache() {
	m.cache.Flush()
	m.logger.Debug("secret cache cleared")
}

// GetCacheSize returns the number of cached secrets
func (m *Manager) GetCacheSize() int {
	return m.cache.ItemCount()
}
