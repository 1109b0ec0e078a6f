package filestore

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

type uploader interface {
	UploadWithContext(ctx aws.Context, input *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error)
}

// S3Mirror copies snapshots to an S3 bucket
type S3Mirror struct {
	bucket string
	prefix string
	up     uploader
}

// NewS3Mirror creates a mirror using the default AWS credential chain
func NewS3Mirror(region, bucket, prefix string) (*S3Mirror, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 mirror requires a bucket")
	}
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}
	return newS3MirrorWithUploader(bucket, prefix, s3manager.NewUploader(sess)), nil
}

func newS3MirrorWithUploader(bucket, prefix string, up uploader) *S3Mirror {
	return &S3Mirror{bucket: bucket, prefix: strings.Trim(prefix, "/"), up: up}
}

// Put uploads data under prefix/name and returns its s3:// URI
func (m *S3Mirror) Put(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	key := path.Join(m.prefix, name)
	_, err := m.up.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload s3://%s/%s: %w", m.bucket, key, err)
	}
	return fmt.Sprintf("s3://%s/%s", m.bucket, key), nil
}
