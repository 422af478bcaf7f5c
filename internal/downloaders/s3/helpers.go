package s3

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type objectAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type S3Client struct {
	objects objectAPI
	presign presignAPI
}

func getS3Client(ctx context.Context, profile string) (*S3Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRetryMode("adaptive")}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %v", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Client{
		objects: client,
		presign: s3.NewPresignClient(client),
	}, nil
}

func objectSize(ctx context.Context, client *S3Client, bucket, key string) (int64, error) {
	headObj, err := client.objects.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("error accessing S3 object: %w", err)
	}
	if headObj.ContentLength == nil || *headObj.ContentLength <= 0 {
		return 0, fmt.Errorf("S3 object s3://%s/%s is empty", bucket, key)
	}
	return *headObj.ContentLength, nil
}

// presignGet returns a plain HTTPS URL that any client can fetch with ranged
// GETs until it expires.
func presignGet(ctx context.Context, client *S3Client, bucket, key string, expiry time.Duration) (string, error) {
	req, err := client.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("error presigning S3 object: %w", err)
	}
	return req.URL, nil
}

func parseS3URL(url string) (string, string, error) {
	if !strings.HasPrefix(url, "s3://") && strings.Contains(url, "://") {
		return "", "", fmt.Errorf("invalid S3 URL format: %s", url)
	}
	url = strings.TrimPrefix(url, "s3://")
	parts := strings.SplitN(url, "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid S3 URL format")
	}
	bucket := parts[0]
	key := ""
	if len(parts) > 1 {
		key = parts[1]
	}
	if key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("s3://%s/%s is not an object key", bucket, key)
	}
	return bucket, key, nil
}
