package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionName(t *testing.T) {
	assert.Equal(t, "projects/my-proj/secrets/fomo-api-key/versions/latest", VersionName("my-proj", "fomo-api-key"))
}

func TestDefaultSecretNames(t *testing.T) {
	names := DefaultSecretNames()
	assert.Equal(t, "fomo-api-key", names.APIKey)
	assert.Equal(t, "fomo-control-token", names.ControlToken)
	assert.NotEmpty(t, names.APIKeyName)
	assert.NotEmpty(t, names.PrivateKey)
}
