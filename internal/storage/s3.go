package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/contactkeeper/internal/config"
)

const presignValidity = 15 * time.Minute

// Seams for testing the AWS SDK interactions.
var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in)
	}

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// S3AvatarStore stores avatars in an S3-compatible bucket (MinIO in
// development) and serves them through presigned GET URLs.
type S3AvatarStore struct {
	config *config.Config
}

// NewS3AvatarStore constructs a store using the server config's S3 settings.
func NewS3AvatarStore(cfg *config.Config) *S3AvatarStore {
	return &S3AvatarStore{config: cfg}
}

// AvatarKey builds the object key for an owner's avatar. A fresh uuid per
// upload means an old presigned URL never serves a newer image.
func AvatarKey(ownerID string) string {
	return fmt.Sprintf("avatars/%s/%v", ownerID, uuid.New())
}

func (s *S3AvatarStore) getClient(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(s.config.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return client, nil
}

// Store uploads the avatar bytes and returns the opaque object key.
func (s *S3AvatarStore) Store(ctx context.Context, data []byte, ownerID string) (string, error) {
	client, err := s.getClient(ctx)
	if err != nil {
		return "", err
	}

	bucket := s.config.S3Bucket
	key := AvatarKey(ownerID)

	_, err = putObject(client, ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("error uploading avatar: %w", err)
	}

	return key, nil
}

// URL resolves a stored reference to a presigned GET URL.
func (s *S3AvatarStore) URL(ctx context.Context, ref string) (string, error) {
	client, err := s.getClient(ctx)
	if err != nil {
		return "", err
	}

	bucket := s.config.S3Bucket

	req, err := presignGetObject(newS3PresignClient(client), ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &ref,
	}, s3.WithPresignExpires(presignValidity))
	if err != nil {
		return "", fmt.Errorf("error presigning avatar url: %w", err)
	}

	return req.URL, nil
}
