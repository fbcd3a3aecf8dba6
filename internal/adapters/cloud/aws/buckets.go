package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/bnema/cloudwhisper/internal/domain"
)

// ListStorageBuckets lists every bucket and enriches each one. A bucket
// whose metadata cannot be read is kept with placeholder fields.
func (c *Client) ListStorageBuckets(ctx context.Context) domain.BucketsResult {
	session := c.snapshot().session

	out, err := session.S3.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		c.logger.Warn().Err(err).Msg("list buckets failed")
		return domain.FailedBuckets(err.Error())
	}

	buckets := make([]domain.Bucket, 0, len(out.Buckets))
	for _, bucket := range out.Buckets {
		if err := c.limiter.Wait(ctx); err != nil {
			return domain.FailedBuckets(fmt.Sprintf("list buckets: %v", err))
		}
		buckets = append(buckets, c.describeBucket(ctx, session.S3, bucket))
	}

	return domain.NewBucketsResult(buckets)
}

func (c *Client) describeBucket(ctx context.Context, api S3API, bucket s3types.Bucket) domain.Bucket {
	name := awssdk.ToString(bucket.Name)
	out := domain.Bucket{Name: name, Created: bucket.CreationDate}
	logger := c.logger.With().Str("bucket", name).Logger()

	location, err := api.GetBucketLocation(ctx, &s3.GetBucketLocationInput{Bucket: bucket.Name})
	if err != nil {
		logger.Warn().Err(err).Msg("bucket details unavailable")
		out.Location = domain.PlaceholderUnknown
		out.Encryption = domain.PlaceholderUnknown
		return out
	}
	out.Location = string(location.LocationConstraint)
	if out.Location == "" {
		out.Location = DefaultRegion
	}
	inRegion := func(o *s3.Options) { o.Region = out.Location }

	versioning, err := api.GetBucketVersioning(ctx, &s3.GetBucketVersioningInput{Bucket: bucket.Name}, inRegion)
	out.Versioning = err == nil && versioning.Status == s3types.BucketVersioningStatusEnabled

	out.Encryption = domain.EncryptionNotEnabled
	if _, err := api.GetBucketEncryption(ctx, &s3.GetBucketEncryptionInput{Bucket: bucket.Name}, inRegion); err == nil {
		out.Encryption = domain.EncryptionEnabled
	}

	size, count, err := c.sampleObjects(ctx, api, bucket.Name, inRegion)
	if err != nil {
		logger.Debug().Err(err).Msg("object sample failed")
	} else {
		out.SizeBytes = size
		out.ObjectCount = count
	}
	out.SizeGB = domain.BytesToGB(out.SizeBytes)

	return out
}

// sampleObjects sums at most objectSample objects of a bucket.
func (c *Client) sampleObjects(ctx context.Context, api S3API, bucket *string, optFns ...func(*s3.Options)) (int64, int64, error) {
	var size, count int64
	paginator := s3.NewListObjectsV2Paginator(api, &s3.ListObjectsV2Input{Bucket: bucket})
	for paginator.HasMorePages() && count < int64(c.objectSample) {
		page, err := paginator.NextPage(ctx, optFns...)
		if err != nil {
			return 0, 0, err
		}
		for _, obj := range page.Contents {
			if count >= int64(c.objectSample) {
				break
			}
			size += awssdk.ToInt64(obj.Size)
			count++
		}
	}

	return size, count, nil
}
