package aws_client

import (
	"bytes"
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"

	"github.com/customeros/mailgovernor/internal/tracing"
)

// ObjectClient is the subset of the S3 API the governor needs. R2 speaks it too.
type ObjectClient interface {
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Delete(ctx context.Context, bucket, key string) error
	List(ctx context.Context, bucket, prefix string) ([]string, error)
}

type s3Client struct {
	uploader   *s3manager.Uploader
	downloader *s3manager.Downloader
	api        *s3.S3
}

func NewS3Client(config *aws.Config) (ObjectClient, error) {
	s, err := session.NewSession(config)
	if err != nil {
		return nil, err
	}
	return &s3Client{
		uploader:   s3manager.NewUploader(s),
		downloader: s3manager.NewDownloader(s),
		api:        s3.New(s),
	}, nil
}

func startSpan(ctx context.Context, operation, bucket, key string) (opentracing.Span, context.Context) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "s3Client."+operation)
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogFields(tracingLog.String("bucket", bucket), tracingLog.String("key", key))
	return span, ctx
}

func (c *s3Client) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	span, ctx := startSpan(ctx, "Put", bucket, key)
	defer span.Finish()

	_, err := c.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

func (c *s3Client) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	span, ctx := startSpan(ctx, "Get", bucket, key)
	defer span.Finish()

	buffer := &aws.WriteAtBuffer{}
	_, err := c.downloader.DownloadWithContext(ctx, buffer, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return buffer.Bytes(), nil
}

func (c *s3Client) Delete(ctx context.Context, bucket, key string) error {
	span, ctx := startSpan(ctx, "Delete", bucket, key)
	defer span.Finish()

	_, err := c.api.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

func (c *s3Client) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	span, ctx := startSpan(ctx, "List", bucket, prefix)
	defer span.Finish()

	var keys []string
	err := c.api.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
		return true
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return keys, nil
}
