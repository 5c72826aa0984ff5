package aws_client

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
)

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
}

// NewR2Client points the S3 client at Cloudflare R2, which needs path style
// addressing and the "auto" region.
func NewR2Client(config R2Config) (ObjectClient, error) {
	return NewS3Client(&aws.Config{
		Endpoint:         aws.String("https://" + config.AccountID + ".r2.cloudflarestorage.com"),
		Region:           aws.String("auto"),
		Credentials:      credentials.NewStaticCredentials(config.AccessKeyID, config.AccessKeySecret, ""),
		S3ForcePathStyle: aws.Bool(true),
	})
}
