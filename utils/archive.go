// utils/archive.go
package utils

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var archiveClient *s3.Client
var archiveBucket string
var archiveBaseURL string

// InitArchive configures the S3-compatible object store (R2) used for
// archiving final tournament standings and match replays. Optional: callers
// must tolerate ArchiveEnabled() == false.
func InitArchive() error {
	accountID := os.Getenv("CLOUDFLARE_ACCOUNT_ID")
	accessKeyID := os.Getenv("R2_ACCESS_KEY_ID")
	accessKeySecret := os.Getenv("R2_ACCESS_KEY_SECRET")
	archiveBucket = os.Getenv("R2_BUCKET_NAME")
	if accountID == "" || accessKeyID == "" || archiveBucket == "" {
		return fmt.Errorf("archive storage not configured")
	}
	archiveBaseURL = os.Getenv("CDN_BASE_URL")
	if archiveBaseURL == "" {
		archiveBaseURL = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID)
	}

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID, accessKeySecret, "",
		)),
		config.WithEndpointResolver(aws.EndpointResolverFunc(
			func(service, region string) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID),
				}, nil
			}),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to load archive config: %w", err)
	}

	archiveClient = s3.NewFromConfig(cfg)
	return nil
}

// ArchiveEnabled reports whether InitArchive succeeded.
func ArchiveEnabled() bool { return archiveClient != nil }

// UploadArchive writes a JSON document to the archive bucket and returns its
// public URL. key is the object key (e.g. "standings/<tournament-id>.json").
func UploadArchive(ctx context.Context, key string, body []byte) (string, error) {
	if archiveClient == nil {
		return "", fmt.Errorf("archive storage not configured")
	}
	_, err := archiveClient.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(archiveBucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload archive object: %w", err)
	}
	return fmt.Sprintf("%s/%s", archiveBaseURL, key), nil
}
