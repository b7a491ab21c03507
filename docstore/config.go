package docstore

import (
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/botstate/errors"
)

// ResourceOptions tunes creation of the backing database or collection.
// Zero values defer to the backend's defaults. Options only apply when the
// resource is first created; existing resources keep their settings.
type ResourceOptions struct {
	// History is how many revisions the backend retains per record.
	History uint8 `json:"history,omitempty"`

	// TTL expires records that have not been written for this duration.
	TTL time.Duration `json:"ttl,omitempty"`

	// MaxValueBytes caps the size of a single stored record.
	MaxValueBytes int32 `json:"max_value_bytes,omitempty"`

	// Replicas is the number of backend replicas for the resource.
	Replicas int `json:"replicas,omitempty"`
}

// Config holds the settings for a document-backed store.
type Config struct {
	// ServiceEndpoint is the backing service URL. Required.
	ServiceEndpoint string `json:"service_endpoint"`

	// AuthToken authenticates against the backing service. Required.
	AuthToken string `json:"auth_token"`

	// DatabaseID names the logical database. Required.
	DatabaseID string `json:"database_id"`

	// CollectionID names the collection within the database. Required.
	CollectionID string `json:"collection_id"`

	// PartitionField optionally names the record field used to shard data.
	// A leading "/" is accepted and normalized. Must not collide with a
	// reserved envelope field.
	PartitionField string `json:"partition_field,omitempty"`

	// PartitionValue scopes this store's records when PartitionField is set.
	// Defaults to the empty string, so a store can still address a
	// previously-partitioned collection without choosing a shard.
	PartitionValue string `json:"partition_value,omitempty"`

	// DatabaseOptions applies when the database is first created.
	DatabaseOptions ResourceOptions `json:"database_options,omitempty"`

	// CollectionOptions applies when the collection is first created.
	CollectionOptions ResourceOptions `json:"collection_options,omitempty"`
}

// Validate checks required settings and normalizes the partition field.
// It is called by New; callers only need it when validating ahead of time.
func (c *Config) Validate() error {
	if isBlank(c.ServiceEndpoint) {
		return errors.Configf("service endpoint is required")
	}
	if isBlank(c.AuthToken) {
		return errors.Configf("auth token is required")
	}
	if isBlank(c.DatabaseID) {
		return errors.Configf("database id is required")
	}
	if isBlank(c.CollectionID) {
		return errors.Configf("collection id is required")
	}

	if c.PartitionField != "" && !strings.HasPrefix(c.PartitionField, "/") {
		c.PartitionField = "/" + c.PartitionField
	}

	if field := c.partitionFieldName(); field != "" {
		for _, reserved := range reservedEnvelopeFields {
			if field == reserved {
				return errors.Configf("partition field %q collides with reserved envelope field", field)
			}
		}
	}

	return nil
}

// partitionFieldName returns the partition field without the path separator.
func (c *Config) partitionFieldName() string {
	return strings.TrimPrefix(c.PartitionField, "/")
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// configSchema validates the JSON shape of a Config before unmarshaling.
const configSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["service_endpoint", "auth_token", "database_id", "collection_id"],
	"properties": {
		"service_endpoint": {"type": "string", "minLength": 1},
		"auth_token": {"type": "string", "minLength": 1},
		"database_id": {"type": "string", "minLength": 1},
		"collection_id": {"type": "string", "minLength": 1},
		"partition_field": {"type": "string"},
		"partition_value": {"type": "string"},
		"database_options": {"$ref": "#/definitions/resource_options"},
		"collection_options": {"$ref": "#/definitions/resource_options"}
	},
	"additionalProperties": false,
	"definitions": {
		"resource_options": {
			"type": "object",
			"properties": {
				"history": {"type": "integer", "minimum": 0, "maximum": 64},
				"ttl": {"type": "integer", "minimum": 0},
				"max_value_bytes": {"type": "integer", "minimum": 0},
				"replicas": {"type": "integer", "minimum": 0, "maximum": 5}
			},
			"additionalProperties": false
		}
	}
}`

// ConfigFromJSON parses and validates a Config from raw JSON, checking the
// document against the package's JSON schema before unmarshaling.
func ConfigFromJSON(data []byte) (Config, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(configSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return Config{}, errors.Configf("config is not valid JSON: %v", err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return Config{}, errors.Configf("config failed schema validation: %s", strings.Join(details, "; "))
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Configf("unmarshal config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
