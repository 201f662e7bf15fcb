package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/arvelex/veriplan/pkg/model"
)

// S3API is the minimal S3 surface the store needs. The AWS SDK client
// satisfies it; tests substitute a fake.
type S3API interface {
	// https://pkg.go.dev/github.com/aws/aws-sdk-go-v2/service/s3#Client.PutObject
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store uploads the run report and the run directory (manifest, trace,
// artifacts) under <prefix>/<run_id>/.
type S3Store struct {
	client S3API
	bucket string
	prefix string

	// RunDir, when set, is uploaded alongside the report.
	RunDir string
}

// NewS3Store builds a store using the ambient AWS credential chain.
func NewS3Store(ctx context.Context, bucket, prefix string) (*S3Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewS3StoreWithClient(s3.NewFromConfig(cfg), bucket, prefix), nil
}

// NewS3StoreWithClient builds a store over an existing client.
func NewS3StoreWithClient(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) Name() string { return "s3" }

// Publish uploads report.json plus every file under RunDir.
func (s *S3Store) Publish(ctx context.Context, rep *model.RunReport) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := s.put(ctx, path.Join(s.prefix, rep.RunID, "report.json"), data, "application/json"); err != nil {
		return err
	}
	if s.RunDir == "" {
		return nil
	}
	return filepath.Walk(s.RunDir, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(s.RunDir, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		return s.put(ctx, path.Join(s.prefix, rep.RunID, filepath.ToSlash(rel)), data, "")
	})
}

func (s *S3Store) put(ctx context.Context, key string, data []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}
