package docstore

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// Envelope field names. The partition field, when configured, becomes a
// fourth top-level field and must not shadow these.
const (
	fieldSanitizedKey = "id"
	fieldOriginalKey  = "key"
	fieldPayload      = "document"
)

var reservedEnvelopeFields = []string{fieldSanitizedKey, fieldOriginalKey, fieldPayload}

// Record is the envelope a stored item travels in. SanitizedKey is the
// storage-safe transform of OriginalKey; the payload carries the item's
// fields with the version tag stripped. VersionToken is backend-managed:
// populated on read, never persisted inside the envelope.
type Record struct {
	SanitizedKey   string
	OriginalKey    string
	Payload        map[string]any
	PartitionValue string
	VersionToken   string
}

// MarshalEnvelope encodes a record for storage. partitionField is the
// normalized (separator-free) partition field name, or empty when the
// collection is unpartitioned.
func MarshalEnvelope(rec Record, partitionField string) ([]byte, error) {
	payload := rec.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	doc := map[string]any{
		fieldSanitizedKey: rec.SanitizedKey,
		fieldOriginalKey:  rec.OriginalKey,
		fieldPayload:      payload,
	}
	if partitionField != "" {
		doc[partitionField] = rec.PartitionValue
	}
	return json.Marshal(doc)
}

// UnmarshalEnvelope decodes a stored record. The version token is not part
// of the envelope; callers attach it from the backend's metadata.
func UnmarshalEnvelope(data []byte, partitionField string) (Record, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return Record{}, fmt.Errorf("unmarshal envelope: %w", err)
	}

	sanitized, ok := doc[fieldSanitizedKey].(string)
	if !ok {
		return Record{}, fmt.Errorf("envelope field %q missing or not a string", fieldSanitizedKey)
	}
	original, ok := doc[fieldOriginalKey].(string)
	if !ok {
		return Record{}, fmt.Errorf("envelope field %q missing or not a string", fieldOriginalKey)
	}
	payload, ok := doc[fieldPayload].(map[string]any)
	if !ok {
		return Record{}, fmt.Errorf("envelope field %q missing or not an object", fieldPayload)
	}

	rec := Record{
		SanitizedKey: sanitized,
		OriginalKey:  original,
		Payload:      payload,
	}
	if partitionField != "" {
		if v, ok := doc[partitionField].(string); ok {
			rec.PartitionValue = v
		}
	}
	return rec, nil
}
