package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const ctxTimeout = 10 * time.Second

// S3Config holds the connection settings for an S3-compatible backend.
type S3Config struct {
	Endpoint        string `json:"endpoint"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	UseSSL          bool   `json:"use_ssl"`
	Region          string `json:"region"`
	Bucket          string `json:"bucket"`
	KeyPrefix       string `json:"key_prefix"`
}

// S3Store implements Store using an S3-compatible backend through the MinIO
// client. The escrow record is kept at [keyPrefix/]escrow/recovery.enc
// inside the bucket, mirroring the filesystem layout.
//
// The object write goes through PutObject, which is atomic on S3: a reader
// sees either the previous object or the complete new one.
type S3Store struct {
	client     *minio.Client
	bucketName string
	keyPrefix  string
}

// NewS3Store initializes a new S3Store and ensures the bucket exists.
func NewS3Store(config S3Config) (*S3Store, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name cannot be empty")
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	store := &S3Store{
		client:     client,
		bucketName: config.Bucket,
		keyPrefix:  config.KeyPrefix,
	}

	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	if err = store.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}

	return store, nil
}

// NewS3StoreFromConfig creates an S3Store from a generic StoreConfig.
func NewS3StoreFromConfig(config StoreConfig) (*S3Store, error) {
	if config.Type != StoreTypeS3 {
		return nil, fmt.Errorf("invalid store type for S3: %s", config.Type)
	}

	jsonData, err := json.Marshal(config.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal S3 config: %w", err)
	}

	var s3Config S3Config
	if err = json.Unmarshal(jsonData, &s3Config); err != nil {
		return nil, fmt.Errorf("invalid S3 config: %w", err)
	}

	return NewS3Store(s3Config)
}

func (s *S3Store) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}

	if err = s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucketName, err)
	}
	return nil
}

func (s *S3Store) escrowKey() string {
	return path.Join(s.keyPrefix, EscrowDirName, EscrowFileName)
}

func (s *S3Store) SaveEscrow(record []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	_, err := s.client.PutObject(ctx, s.bucketName, s.escrowKey(),
		bytes.NewReader(record), int64(len(record)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return fmt.Errorf("failed to save escrow record to s3://%s/%s: %w", s.bucketName, s.escrowKey(), err)
	}
	return nil
}

func (s *S3Store) LoadEscrow() ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	obj, err := s.client.GetObject(ctx, s.bucketName, s.escrowKey(), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get escrow record: %w", err)
	}
	defer func() { _ = obj.Close() }()

	data, err := io.ReadAll(obj)
	if err != nil {
		var respErr minio.ErrorResponse
		if errors.As(err, &respErr) && respErr.Code == "NoSuchKey" {
			return nil, ErrEscrowNotFound
		}
		return nil, fmt.Errorf("failed to read escrow record: %w", err)
	}
	return data, nil
}

func (s *S3Store) EscrowExists() (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	_, err := s.client.StatObject(ctx, s.bucketName, s.escrowKey(), minio.StatObjectOptions{})
	if err != nil {
		var respErr minio.ErrorResponse
		if errors.As(err, &respErr) && respErr.Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat escrow record: %w", err)
	}
	return true, nil
}

func (s *S3Store) EscrowPath() string {
	return fmt.Sprintf("s3://%s/%s", s.bucketName, s.escrowKey())
}

func (s *S3Store) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	if _, err := s.client.BucketExists(ctx, s.bucketName); err != nil {
		return fmt.Errorf("S3 backend unreachable: %w", err)
	}
	return nil
}

func (s *S3Store) Close() error {
	return nil
}

func (s *S3Store) GetType() string {
	return string(StoreTypeS3)
}
