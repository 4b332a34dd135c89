package s3_client

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
)

type putAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Bucket uploads objects to one bucket and hands back a URL a mail client
// can fetch: under publicBaseURL when set, presigned otherwise.
type Bucket struct {
	api           putAPI
	presign       presignAPI
	name          string
	publicBaseURL string
	presignTTL    time.Duration
}

func NewBucket(c *s3.Client, name, publicBaseURL string, presignTTL time.Duration) *Bucket {
	return newBucket(c, s3.NewPresignClient(c), name, publicBaseURL, presignTTL)
}

func newBucket(api putAPI, presign presignAPI, name, publicBaseURL string, presignTTL time.Duration) *Bucket {
	return &Bucket{
		api:           api,
		presign:       presign,
		name:          name,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		presignTTL:    presignTTL,
	}
}

func (b *Bucket) Upload(ctx context.Context, key, contentType string, body []byte) (string, error) {
	if b.name == "" {
		return "", errors.New("s3 bucket is not configured")
	}
	_, err := b.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.name),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to upload s3://%s/%s", b.name, key)
	}
	return b.URL(ctx, key)
}

func (b *Bucket) URL(ctx context.Context, key string) (string, error) {
	if b.publicBaseURL != "" {
		return b.publicBaseURL + "/" + (&url.URL{Path: key}).EscapedPath(), nil
	}
	req, err := b.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(b.presignTTL))
	if err != nil {
		return "", errors.Wrapf(err, "failed to presign s3://%s/%s", b.name, key)
	}
	return req.URL, nil
}
