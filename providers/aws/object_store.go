// Package aws implements the orchestrator's infrastructure collaborators
// on AWS: S3 for shared storage, SQS for the dispatch queue, SageMaker
// for external execution and Kinesis Video for telemetry channels.
package aws

import (
	"bytes"
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"
)

// ObjectStore persists job configuration artifacts in an S3 bucket.
type ObjectStore struct {
	client *s3.Client
	bucket string
}

// NewObjectStore creates a new S3-backed object store
func NewObjectStore(client *s3.Client, bucket string) *ObjectStore {
	return &ObjectStore{client: client, bucket: bucket}
}

// Write stores content at the given key.
func (s *ObjectStore) Write(ctx context.Context, location string, content []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(location),
		Body:   bytes.NewReader(content),
	})
	return errors.Wrapf(err, "write s3://%s/%s", s.bucket, location)
}

// DeletePrefix removes every object under the given key prefix.
func (s *ObjectStore) DeletePrefix(ctx context.Context, locationPrefix string) error {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(locationPrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return errors.Wrapf(err, "list s3://%s/%s", s.bucket, locationPrefix)
		}
		if len(page.Contents) == 0 {
			continue
		}

		objects := make([]s3types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			objects = append(objects, s3types.ObjectIdentifier{Key: obj.Key})
		}
		_, err = s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3types.Delete{Objects: objects},
		})
		if err != nil {
			return errors.Wrapf(err, "delete s3://%s/%s", s.bucket, locationPrefix)
		}
	}
	return nil
}
