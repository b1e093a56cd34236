package artifacts

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3 stores artifacts in an S3 bucket. Locators are the URLs of the uploaded
// objects.
type S3 struct {
	bucket   string
	uploader *manager.Uploader
}

// NewS3 returns a Store uploading to the given bucket. AWS credentials and
// region are read from the environment or shared configuration files, see
// https://docs.aws.amazon.com/sdk-for-go/v2/developer-guide/configuring-sdk.html
func NewS3(ctx context.Context, bucket string) (*S3, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	clt := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return &S3{
		bucket:   bucket,
		uploader: manager.NewUploader(clt),
	}, nil
}

func (s *S3) Put(key string, r io.Reader) (string, error) {
	res, err := s.uploader.Upload(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	if err != nil {
		return "", err
	}
	return res.Location, nil
}
