package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/sirupsen/logrus"
)

// ErrEmptySecret is returned when the latest version of a secret has no payload.
var ErrEmptySecret = errors.New("secret payload is empty")

// GCPSecretManager reads the latest version of bot credentials from Secret Manager.
type GCPSecretManager struct {
	client    *secretmanager.Client
	projectID string
	logger    *logrus.Logger
}

func NewGCPSecretManager(ctx context.Context, projectID string, logger *logrus.Logger) (*GCPSecretManager, error) {
	if projectID == "" {
		return nil, errors.New("gcp project id is required")
	}

	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create secretmanager client: %w", err)
	}

	return &GCPSecretManager{
		client:    client,
		projectID: projectID,
		logger:    logger,
	}, nil
}

// VersionName is the resource name of the latest version of secretName.
func VersionName(projectID, secretName string) string {
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", projectID, secretName)
}

func (g *GCPSecretManager) GetSecret(ctx context.Context, secretName string) (string, error) {
	result, err := g.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: VersionName(g.projectID, secretName),
	})
	if err != nil {
		return "", fmt.Errorf("failed to access secret %s: %w", secretName, err)
	}

	value := strings.TrimSpace(string(result.GetPayload().GetData()))
	if value == "" {
		return "", fmt.Errorf("secret %s: %w", secretName, ErrEmptySecret)
	}
	return value, nil
}

// GetSecretWithDefault returns defaultValue when the secret is missing, unreadable or empty.
func (g *GCPSecretManager) GetSecretWithDefault(ctx context.Context, secretName, defaultValue string) string {
	if secretName == "" {
		return defaultValue
	}

	value, err := g.GetSecret(ctx, secretName)
	if err != nil {
		g.logger.WithError(err).WithField("secret", secretName).Debug("Secret unavailable, keeping configured value")
		return defaultValue
	}
	return value
}

func (g *GCPSecretManager) Close() error {
	return g.client.Close()
}

// SecretNames are the Secret Manager secret IDs holding the bot's credentials
type SecretNames struct {
	// FOMO API credentials
	APIKey     string `mapstructure:"api_key"`
	APIKeyName string `mapstructure:"api_key_name"`
	PrivateKey string `mapstructure:"private_key"`

	// Shared token required by the control API
	ControlToken string `mapstructure:"control_token"`
}

func DefaultSecretNames() SecretNames {
	return SecretNames{
		APIKey:       "fomo-api-key",
		APIKeyName:   "fomo-api-key-name",
		PrivateKey:   "fomo-private-key",
		ControlToken: "fomo-control-token",
	}
}
