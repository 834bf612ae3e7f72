package publish

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Target uploads artifacts to an S3 bucket with a declared storage class.
// Harvested artifacts are written once and read rarely, so the default
// configuration asks for one-zone infrequent access.
type S3Target struct {
	client       *s3.Client
	bucket       string
	storageClass types.StorageClass
}

// NewS3 builds a Target over the named bucket. Empty credentials fall back
// to the SDK default provider chain.
func NewS3(ctx context.Context, bucket, region, accessKeyID, secretKey, storageClass string) (*S3Target, error) {
	var opts = []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if accessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretKey, "")))
	}
	var cfg, err = awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("building AWS config: %w", err)
	}
	return &S3Target{
		client:       s3.NewFromConfig(cfg),
		bucket:       bucket,
		storageClass: types.StorageClass(storageClass),
	}, nil
}

// Put uploads |localFile| under the object key |destPath|.
func (t *S3Target) Put(ctx context.Context, localFile, destPath string) error {
	var in, err = os.Open(localFile)
	if err != nil {
		return fmt.Errorf("opening %s: %w", localFile, err)
	}
	defer in.Close()

	if _, err = t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(t.bucket),
		Key:          aws.String(destPath),
		Body:         in,
		StorageClass: t.storageClass,
	}); err != nil {
		return fmt.Errorf("uploading %s: %w", destPath, err)
	}
	return nil
}
