package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"

	"github.com/restream-tools/restreamctl/internal/auth"
)

const objectTokenName = "tokens.json"

// ObjectTokenStoreConfig captures the settings for an S3-compatible
// backend. Prefix places the token object under a shared key namespace so
// one bucket can serve several tools.
type ObjectTokenStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	// PathStyle forces path-style bucket addressing for backends such as
	// MinIO that do not resolve virtual-host bucket names.
	PathStyle bool
	Region    string
	Bucket    string
	Prefix    string
}

// ObjectTokenStore persists the token record as a single JSON object in an
// S3-compatible bucket.
type ObjectTokenStore struct {
	client *minio.Client
	cfg    ObjectTokenStoreConfig
}

// NewObjectTokenStore creates the client and ensures the bucket exists.
func NewObjectTokenStore(ctx context.Context, cfg ObjectTokenStoreConfig) (*ObjectTokenStore, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("object token store: endpoint is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("object token store: bucket is required")
	}

	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	if cfg.PathStyle {
		opts.BucketLookup = minio.BucketLookupPath
	}

	client, err := minio.New(cfg.Endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("object token store: create client: %w", err)
	}

	store := &ObjectTokenStore{client: client, cfg: cfg}
	if err = store.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *ObjectTokenStore) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("object token store: check bucket: %w", err)
	}
	if !exists {
		err = s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region})
		if err != nil {
			return fmt.Errorf("object token store: create bucket: %w", err)
		}
	}
	return nil
}

func (s *ObjectTokenStore) objectKey() string {
	if strings.TrimSpace(s.cfg.Prefix) == "" {
		return objectTokenName
	}
	return path.Join(strings.Trim(s.cfg.Prefix, "/"), objectTokenName)
}

// Save uploads the record, replacing any previous object.
func (s *ObjectTokenStore) Save(ctx context.Context, record *auth.TokenRecord) error {
	if record == nil || record.AccessToken == "" {
		return errors.New("token store: record must carry an access token")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("object token store: marshal record: %w", err)
	}
	_, err = s.client.PutObject(ctx, s.cfg.Bucket, s.objectKey(), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("object token store: put token object: %w", err)
	}
	return nil
}

// Load downloads the record. A missing object or corrupt content is an
// absent session.
func (s *ObjectTokenStore) Load(ctx context.Context) (*auth.TokenRecord, error) {
	object, err := s.client.GetObject(ctx, s.cfg.Bucket, s.objectKey(), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("object token store: get token object: %w", err)
	}
	defer func() { _ = object.Close() }()

	data, err := io.ReadAll(object)
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return nil, nil
		}
		return nil, fmt.Errorf("object token store: read token object: %w", err)
	}

	var record auth.TokenRecord
	if err = json.Unmarshal(data, &record); err != nil {
		log.Debugf("token object %s unparsable, treating as no session: %v", s.objectKey(), err)
		return nil, nil
	}
	if record.AccessToken == "" {
		return nil, nil
	}
	return &record, nil
}

// Clear removes the token object. A missing object is not an error.
func (s *ObjectTokenStore) Clear(ctx context.Context) error {
	err := s.client.RemoveObject(ctx, s.cfg.Bucket, s.objectKey(), minio.RemoveObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return nil
		}
		return fmt.Errorf("object token store: remove token object: %w", err)
	}
	return nil
}
