package publish

import (
	"context"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSTarget uploads artifacts to a Google Cloud Storage bucket.
type GCSTarget struct {
	bucket *storage.BucketHandle
}

// NewGCS builds a Target over the named bucket. An empty |credentialsFile|
// falls back to application default credentials.
func NewGCS(ctx context.Context, bucket, credentialsFile string) (*GCSTarget, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	var client, err = storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("building GCS client: %w", err)
	}
	return &GCSTarget{bucket: client.Bucket(bucket)}, nil
}

// Put uploads |localFile| under the object key |destPath|. The write is
// atomic: the object appears only once Close commits it.
func (t *GCSTarget) Put(ctx context.Context, localFile, destPath string) error {
	var in, err = os.Open(localFile)
	if err != nil {
		return fmt.Errorf("opening %s: %w", localFile, err)
	}
	defer in.Close()

	var w = t.bucket.Object(destPath).NewWriter(ctx)
	if _, err = io.Copy(w, in); err != nil {
		w.Close()
		return fmt.Errorf("uploading %s: %w", destPath, err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("uploading %s: %w", destPath, err)
	}
	return nil
}
