// Package natsdoc binds the docstore.DocumentClient contract to NATS
// JetStream KV.
//
// Each logical database maps to one KV bucket. Collections are key
// namespaces inside the bucket: a descriptor record under "c.<collection>"
// pins the collection's partition scheme, and data records live under
// "d.<collection>.p<partitionValue>.<sanitizedKey>", so each partition of a
// collection occupies disjoint physical keys. KV revisions are the version
// tokens surfaced to the store, and revision-checked updates implement
// conditional replace.
//
// Database creation options configure the bucket; collection options are
// recorded in the descriptor for diagnostics, since KV offers no physical
// tuning below the bucket level.
package natsdoc

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/botstate/docstore"
	"github.com/c360/botstate/errors"
	"github.com/c360/botstate/storage"
)

// Key namespaces inside a database bucket.
const (
	descriptorPrefix = "c."
	dataPrefix       = "d."
)

// collectionDescriptor pins a collection's schema at creation time.
type collectionDescriptor struct {
	Collection     string                   `json:"collection"`
	PartitionField string                   `json:"partition_field"`
	Options        docstore.ResourceOptions `json:"options,omitempty"`
}

// Client implements docstore.DocumentClient over JetStream KV.
// The NATS connection is established lazily on first use. Safe for
// concurrent use.
type Client struct {
	url      string
	name     string
	token    string
	username string
	password string
	timeout  time.Duration
	logger   Logger

	mu              sync.Mutex
	nc              *nats.Conn
	js              jetstream.JetStream
	buckets         map[string]jetstream.KeyValue
	partitionFields map[string]string // "db/coll" -> partition field
}

var _ docstore.DocumentClient = (*Client)(nil)

// New creates a client for the given NATS URL. No connection is made until
// the first operation.
func New(url string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.Configf("service endpoint is required")
	}

	c := &Client{
		url:             url,
		name:            "botstate-" + uuid.NewString()[:8],
		timeout:         5 * time.Second,
		logger:          &defaultLogger{},
		buckets:         make(map[string]jetstream.KeyValue),
		partitionFields: make(map[string]string),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Open builds a Client from cfg's endpoint and credential and returns a
// document-backed store over it.
func Open(cfg docstore.Config, storeOpts ...docstore.Option) (*docstore.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := New(cfg.ServiceEndpoint, WithToken(cfg.AuthToken))
	if err != nil {
		return nil, err
	}
	return docstore.New(client, cfg, storeOpts...)
}

// connect establishes the NATS connection once. Callers hold c.mu.
func (c *Client) connect() error {
	if c.nc != nil {
		return nil
	}

	opts := []nats.Option{
		nats.Name(c.name),
		nats.Timeout(c.timeout),
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}
	if c.username != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}

	nc, err := nats.Connect(c.url, opts...)
	if err != nil {
		return fmt.Errorf("connect %s: %w", c.url, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return fmt.Errorf("jetstream context: %w", err)
	}

	c.nc = nc
	c.js = js
	c.logger.Printf("connected to %s as %s", c.url, c.name)
	return nil
}

// Close releases the NATS connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nc != nil {
		c.nc.Close()
		c.nc = nil
		c.js = nil
		c.buckets = make(map[string]jetstream.KeyValue)
	}
	return nil
}

// EnsureDatabase creates the database's bucket if it does not exist,
// tolerating concurrent-creation races.
func (c *Client) EnsureDatabase(ctx context.Context, databaseID string, opts docstore.ResourceOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.buckets[databaseID]; ok {
		return nil
	}
	if err := c.connect(); err != nil {
		return err
	}

	name := bucketName(databaseID)

	// Existing bucket wins; creation options only apply to a fresh one.
	bucket, err := c.js.KeyValue(ctx, name)
	if err == nil {
		c.logger.Debugf("using existing bucket %s", name)
		c.buckets[databaseID] = bucket
		return nil
	}
	if !stderrors.Is(err, jetstream.ErrBucketNotFound) {
		return fmt.Errorf("lookup bucket %s: %w", name, err)
	}

	cfg := jetstream.KeyValueConfig{
		Bucket:       name,
		Description:  "botstate database " + databaseID,
		History:      opts.History,
		TTL:          opts.TTL,
		MaxValueSize: opts.MaxValueBytes,
		Replicas:     opts.Replicas,
	}

	bucket, err = c.js.CreateKeyValue(ctx, cfg)
	if err != nil {
		if isAlreadyExists(err) {
			// Lost the creation race; the winner's bucket serves.
			bucket, err = c.js.KeyValue(ctx, name)
			if err != nil {
				return fmt.Errorf("access bucket %s after race: %w", name, err)
			}
			c.logger.Printf("bucket %s already existed, using it", name)
			c.buckets[databaseID] = bucket
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", name, err)
	}

	c.logger.Printf("created bucket %s", name)
	c.buckets[databaseID] = bucket
	return nil
}

// EnsureCollection pins the collection's descriptor, creating it if absent.
// A descriptor that already exists with a different partition field is a
// schema mismatch.
func (c *Client) EnsureCollection(ctx context.Context, databaseID, collectionID, partitionField string, opts docstore.ResourceOptions) error {
	bucket, err := c.bucket(databaseID)
	if err != nil {
		return err
	}

	desc := collectionDescriptor{
		Collection:     collectionID,
		PartitionField: partitionField,
		Options:        opts,
	}
	data, err := json.Marshal(desc)
	if err != nil {
		return fmt.Errorf("marshal collection descriptor: %w", err)
	}

	key := descriptorKey(collectionID)
	_, err = bucket.Create(ctx, key, data)
	if err == nil {
		c.logger.Printf("created collection %s/%s (partition field %q)", databaseID, collectionID, partitionField)
		c.setPartitionField(databaseID, collectionID, partitionField)
		return nil
	}
	if !isAlreadyExists(err) {
		return fmt.Errorf("create collection %s/%s: %w", databaseID, collectionID, err)
	}

	// Descriptor exists: idempotent success only if the schemes agree.
	entry, err := bucket.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("read collection descriptor %s/%s: %w", databaseID, collectionID, err)
	}
	var existing collectionDescriptor
	if err := json.Unmarshal(entry.Value(), &existing); err != nil {
		return fmt.Errorf("unmarshal collection descriptor %s/%s: %w", databaseID, collectionID, err)
	}
	if existing.PartitionField != partitionField {
		return fmt.Errorf("%w: collection %s/%s has partition field %q, requested %q",
			errors.ErrSchemaMismatch, databaseID, collectionID, existing.PartitionField, partitionField)
	}

	c.setPartitionField(databaseID, collectionID, partitionField)
	return nil
}

// ReadRecords point-reads each sanitized key, skipping absences and records
// outside the requested partition.
func (c *Client) ReadRecords(ctx context.Context, databaseID, collectionID string, sanitizedKeys []string, partitionValue string) ([]docstore.Record, error) {
	bucket, err := c.bucket(databaseID)
	if err != nil {
		return nil, err
	}
	partitionField, err := c.getPartitionField(databaseID, collectionID)
	if err != nil {
		return nil, err
	}

	var out []docstore.Record
	for _, sanitized := range sanitizedKeys {
		entry, err := bucket.Get(ctx, dataKey(collectionID, partitionValue, sanitized))
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("get %s: %w", sanitized, err)
		}

		rec, err := docstore.UnmarshalEnvelope(entry.Value(), partitionField)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", sanitized, err)
		}
		if rec.PartitionValue != partitionValue {
			continue
		}
		rec.VersionToken = formatToken(entry.Revision())
		out = append(out, rec)
	}
	return out, nil
}

// UpsertRecord inserts or replaces unconditionally.
func (c *Client) UpsertRecord(ctx context.Context, databaseID, collectionID string, rec docstore.Record) (string, error) {
	bucket, err := c.bucket(databaseID)
	if err != nil {
		return "", err
	}
	partitionField, err := c.getPartitionField(databaseID, collectionID)
	if err != nil {
		return "", err
	}

	data, err := docstore.MarshalEnvelope(rec, partitionField)
	if err != nil {
		return "", err
	}
	rev, err := bucket.Put(ctx, dataKey(collectionID, rec.PartitionValue, rec.SanitizedKey), data)
	if err != nil {
		return "", fmt.Errorf("put %s: %w", rec.SanitizedKey, err)
	}
	return formatToken(rev), nil
}

// ReplaceRecord replaces only when the stored revision matches ifMatch.
// A token that was not minted by this backend cannot match any revision and
// is reported as a conflict.
func (c *Client) ReplaceRecord(ctx context.Context, databaseID, collectionID string, rec docstore.Record, ifMatch string) (string, error) {
	bucket, err := c.bucket(databaseID)
	if err != nil {
		return "", err
	}
	partitionField, err := c.getPartitionField(databaseID, collectionID)
	if err != nil {
		return "", err
	}

	revision, err := parseToken(ifMatch)
	if err != nil {
		return "", fmt.Errorf("%w: malformed version token %q", errors.ErrConcurrencyConflict, ifMatch)
	}

	data, err := docstore.MarshalEnvelope(rec, partitionField)
	if err != nil {
		return "", err
	}

	rev, err := bucket.Update(ctx, dataKey(collectionID, rec.PartitionValue, rec.SanitizedKey), data, revision)
	if err != nil {
		if isConflict(err) || isNotFound(err) {
			return "", fmt.Errorf("%w: %s", errors.ErrConcurrencyConflict, err)
		}
		return "", fmt.Errorf("update %s: %w", rec.SanitizedKey, err)
	}
	return formatToken(rev), nil
}

// DeleteRecord removes the record stored under sanitizedKey in the given
// partition. Absent keys are success; records in other partitions are
// untouched.
func (c *Client) DeleteRecord(ctx context.Context, databaseID, collectionID, sanitizedKey, partitionValue string) error {
	bucket, err := c.bucket(databaseID)
	if err != nil {
		return err
	}

	err = bucket.Delete(ctx, dataKey(collectionID, partitionValue, sanitizedKey))
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete %s: %w", sanitizedKey, err)
	}
	return nil
}

func (c *Client) bucket(databaseID string) (jetstream.KeyValue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bucket, ok := c.buckets[databaseID]
	if !ok {
		return nil, fmt.Errorf("%w: database %q", errors.ErrNotProvisioned, databaseID)
	}
	return bucket, nil
}

func (c *Client) setPartitionField(databaseID, collectionID, field string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partitionFields[databaseID+"/"+collectionID] = field
}

func (c *Client) getPartitionField(databaseID, collectionID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	field, ok := c.partitionFields[databaseID+"/"+collectionID]
	if !ok {
		return "", fmt.Errorf("%w: collection %q", errors.ErrNotProvisioned, collectionID)
	}
	return field, nil
}

// bucketName maps a database id to a valid bucket name. Bucket names only
// allow [A-Za-z0-9_-]; anything else becomes '_'.
func bucketName(databaseID string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, databaseID)
	return "botstate_" + mapped
}

func descriptorKey(collectionID string) string {
	return descriptorPrefix + storage.EscapeKey(collectionID)
}

// dataKey builds the KV key for a record. The partition value is part of
// record identity, so stores on different partitions of the same collection
// address disjoint physical keys. The "p" introducer keeps the partition
// segment non-empty for unpartitioned records.
func dataKey(collectionID, partitionValue, sanitizedKey string) string {
	return dataPrefix + storage.EscapeKey(collectionID) +
		".p" + storage.EscapeKey(partitionValue) +
		"." + sanitizedKey
}

func formatToken(revision uint64) string {
	return strconv.FormatUint(revision, 10)
}

func parseToken(token string) (uint64, error) {
	return strconv.ParseUint(token, 10, 64)
}

// Error detection helpers. JetStream surfaces some conditions as typed
// sentinels and some as raw API errors, so both are checked.

func isAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, jetstream.ErrBucketExists) || stderrors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "already in use") ||
		strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "10058")
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, jetstream.ErrKeyNotFound) || stderrors.Is(err, jetstream.ErrBucketNotFound) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "key not found") ||
		strings.Contains(msg, "10037")
}

func isConflict(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "wrong last sequence") ||
		strings.Contains(msg, "10071")
}
