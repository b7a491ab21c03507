package docstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/botstate/errors"
)

func TestConfig_Validate_RequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing endpoint", func(c *Config) { c.ServiceEndpoint = "" }},
		{"whitespace endpoint", func(c *Config) { c.ServiceEndpoint = "   " }},
		{"missing token", func(c *Config) { c.AuthToken = "" }},
		{"missing database", func(c *Config) { c.DatabaseID = "" }},
		{"whitespace database", func(c *Config) { c.DatabaseID = "\t\n" }},
		{"missing collection", func(c *Config) { c.CollectionID = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsConfig(err))
		})
	}
}

func TestConfig_Validate_NormalizesPartitionField(t *testing.T) {
	cfg := testConfig()
	cfg.PartitionField = "tenant"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/tenant", cfg.PartitionField)
	assert.Equal(t, "tenant", cfg.partitionFieldName())

	// Already separated stays as-is.
	cfg = testConfig()
	cfg.PartitionField = "/tenant"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/tenant", cfg.PartitionField)
}

func TestConfig_Validate_PartitionValueDefaultsEmpty(t *testing.T) {
	cfg := testConfig()
	cfg.PartitionField = "/tenant"
	require.NoError(t, cfg.Validate())
	assert.Empty(t, cfg.PartitionValue)
}

func TestConfig_Validate_ReservedPartitionFieldRejected(t *testing.T) {
	for _, reserved := range []string{"id", "/id", "key", "/key", "document", "/document"} {
		cfg := testConfig()
		cfg.PartitionField = reserved
		err := cfg.Validate()
		require.Error(t, err, "field %q", reserved)
		assert.True(t, errors.IsConfig(err))
	}
}

func TestConfig_Validate_OKWithoutPartition(t *testing.T) {
	cfg := testConfig()
	assert.NoError(t, cfg.Validate())
}

func TestConfigFromJSON_Valid(t *testing.T) {
	raw := []byte(`{
		"service_endpoint": "nats://localhost:4222",
		"auth_token": "s3cret",
		"database_id": "botstate",
		"collection_id": "conversations",
		"partition_field": "tenant",
		"partition_value": "contoso",
		"collection_options": {"history": 5, "replicas": 3}
	}`)

	cfg, err := ConfigFromJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, "botstate", cfg.DatabaseID)
	assert.Equal(t, "/tenant", cfg.PartitionField, "normalization applies after parsing")
	assert.Equal(t, uint8(5), cfg.CollectionOptions.History)
	assert.Equal(t, 3, cfg.CollectionOptions.Replicas)
}

func TestConfigFromJSON_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{`},
		{"missing required", `{"service_endpoint": "nats://x"}`},
		{"wrong type", `{"service_endpoint": 1, "auth_token": "t", "database_id": "d", "collection_id": "c"}`},
		{"empty required", `{"service_endpoint": "", "auth_token": "t", "database_id": "d", "collection_id": "c"}`},
		{"unknown field", `{"service_endpoint": "nats://x", "auth_token": "t", "database_id": "d", "collection_id": "c", "surprise": true}`},
		{"replicas out of range", `{"service_endpoint": "nats://x", "auth_token": "t", "database_id": "d", "collection_id": "c", "collection_options": {"replicas": 9}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ConfigFromJSON([]byte(tt.raw))
			require.Error(t, err)
			assert.True(t, errors.IsConfig(err))
		})
	}
}

func TestConfigFromJSON_ReservedPartitionField(t *testing.T) {
	raw := []byte(`{
		"service_endpoint": "nats://x",
		"auth_token": "t",
		"database_id": "d",
		"collection_id": "c",
		"partition_field": "id"
	}`)
	_, err := ConfigFromJSON(raw)
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}
