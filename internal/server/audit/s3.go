package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/samber/oops"
)

// S3Config addresses an S3-compatible bucket (MinIO in development).
type S3Config struct {
	User         string
	Password     string
	Bucket       string
	Region       string
	BaseEndpoint string
}

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink archives each record as a JSON object keyed by date and id.
type S3Sink struct {
	client objectPutter
	bucket string
}

// NewS3Client builds a path-style client with static credentials.
func NewS3Client(ctx context.Context, c S3Config) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(c.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.User, c.Password, "")),
	)
	if err != nil {
		return nil, oops.Code("AUDIT_S3_CONFIG").Wrap(err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if c.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(c.BaseEndpoint)
		}
		o.UsePathStyle = true
	}), nil
}

func NewS3Sink(client objectPutter, bucket string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket}
}

// ObjectKey returns audit/YYYY/MM/DD/<id>.json for r.
func ObjectKey(r Record) string {
	d := r.At.UTC()
	return fmt.Sprintf("audit/%04d/%02d/%02d/%s.json", d.Year(), d.Month(), d.Day(), r.ID)
}

func (s *S3Sink) Write(ctx context.Context, r Record) error {
	body, err := json.Marshal(r)
	if err != nil {
		return oops.Code("AUDIT_ENCODE").With("audit_id", r.ID).Wrap(err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(ObjectKey(r)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return oops.Code("AUDIT_S3_PUT").With("audit_id", r.ID, "bucket", s.bucket).Wrap(err)
	}
	return nil
}
