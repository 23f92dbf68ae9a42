package storage

import (
	"context"
	"fmt"
	"net/url"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/s3blob" // S3 driver
)

// NewS3Store creates a store on an S3-compatible bucket.
// endpoint can be empty for AWS S3, or a custom URL for B2/R2/MinIO.
func NewS3Store(ctx context.Context, bucketName, prefix, endpoint, region string) (*BucketStore, error) {
	bucket, err := blob.OpenBucket(ctx, S3BucketURL(bucketName, endpoint, region))
	if err != nil {
		return nil, fmt.Errorf("open S3 bucket %s: %w", bucketName, err)
	}

	return NewBucketStore(bucket, fmt.Sprintf("s3://%s", bucketName), prefix), nil
}

// S3BucketURL builds the gocloud URL for an S3 bucket.
//
//	AWS:             s3://bucket-name?region=us-east-1
//	Custom endpoint: s3://bucket-name?endpoint=https://...&region=...&s3ForcePathStyle=true
func S3BucketURL(bucketName, endpoint, region string) string {
	bucketURL := fmt.Sprintf("s3://%s", bucketName)

	params := url.Values{}
	if region != "" {
		params.Set("region", region)
	}
	if endpoint != "" {
		params.Set("endpoint", endpoint)
		// Custom endpoints usually need path-style addressing
		params.Set("s3ForcePathStyle", "true")
	}
	if len(params) > 0 {
		bucketURL = bucketURL + "?" + params.Encode()
	}
	return bucketURL
}
