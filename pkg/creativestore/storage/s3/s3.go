// Package s3 provides a VersionedBlobStore backed by S3-compatible object
// storage. The buckets it talks to must have versioning enabled; every write
// produces a new immutable version and deletes write delete markers.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/creativestore/creative-store/pkg/creativestore"
)

const versionPageSize = 1000

// Config options for the S3 backend.
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)

	// MinIO/S3-compatible service options. Versioning is enabled on a
	// freshly created bucket; an existing bucket is assumed to carry it.
	CreateBucketIfNotExist bool
}

// Store is an S3-compatible implementation of
// creativestore.VersionedBlobStore.
type Store struct {
	client *s3.Client
	bucket string
	config Config
}

// New creates a new S3-compatible versioned storage backend.
func New(config Config) (*Store, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}

	var (
		awsCfg aws.Config
		err    error
	)
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				config.AccessKeyID,
				config.SecretAccessKey,
				"",
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	store := &Store{
		client: s3.NewFromConfig(awsCfg, s3Options...),
		bucket: config.Bucket,
		config: config,
	}

	if config.CreateBucketIfNotExist {
		if err := store.createBucketIfNotExists(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return store, nil
}

var _ creativestore.VersionedBlobStore = (*Store)(nil)

func (s *Store) createBucketIfNotExists(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) &&
		!strings.Contains(err.Error(), "NoSuchBucket") {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	createInput := &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	}
	if s.config.Region != "us-east-1" {
		createInput.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.config.Region),
		}
	}
	if _, err := s.client.CreateBucket(ctx, createInput); err != nil {
		if !strings.Contains(err.Error(), "BucketAlreadyExists") &&
			!strings.Contains(err.Error(), "BucketAlreadyOwnedByYou") {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	_, err = s.client.PutBucketVersioning(ctx, &s3.PutBucketVersioningInput{
		Bucket: aws.String(s.bucket),
		VersioningConfiguration: &types.VersioningConfiguration{
			Status: types.BucketVersioningStatusEnabled,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to enable bucket versioning: %w", err)
	}
	return nil
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, opts creativestore.PutOptions) (string, error) {
	uploader := manager.NewUploader(s.client)
	input := &s3.PutObjectInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		Body:     body,
		Metadata: opts.Metadata,
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if opts.ACL != "" {
		input.ACL = types.ObjectCannedACL(opts.ACL)
	}
	if opts.CacheControl != "" {
		input.CacheControl = aws.String(opts.CacheControl)
	}

	result, err := uploader.Upload(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to upload object: %w", err)
	}
	return aws.ToString(result.VersionID), nil
}

func (s *Store) Get(ctx context.Context, key, versionID string) ([]byte, *creativestore.ObjectMeta, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if versionID != "" {
		input.VersionId = aws.String(versionID)
	}

	result, err := s.client.GetObject(ctx, input)
	if err != nil {
		return nil, nil, mapError(err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read object body: %w", err)
	}

	meta := &creativestore.ObjectMeta{
		Key:          key,
		VersionID:    aws.ToString(result.VersionId),
		Size:         aws.ToInt64(result.ContentLength),
		ContentType:  aws.ToString(result.ContentType),
		ETag:         aws.ToString(result.ETag),
		LastModified: aws.ToTime(result.LastModified),
		Metadata:     result.Metadata,
	}
	return data, meta, nil
}

func (s *Store) Head(ctx context.Context, key, versionID string) (*creativestore.ObjectMeta, error) {
	input := &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if versionID != "" {
		input.VersionId = aws.String(versionID)
	}

	result, err := s.client.HeadObject(ctx, input)
	if err != nil {
		return nil, mapError(err)
	}
	return &creativestore.ObjectMeta{
		Key:          key,
		VersionID:    aws.ToString(result.VersionId),
		Size:         aws.ToInt64(result.ContentLength),
		ContentType:  aws.ToString(result.ContentType),
		ETag:         aws.ToString(result.ETag),
		LastModified: aws.ToTime(result.LastModified),
		Metadata:     result.Metadata,
	}, nil
}

func (s *Store) List(ctx context.Context, prefix, continuationToken string) ([]string, string, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	if continuationToken != "" {
		input.ContinuationToken = aws.String(continuationToken)
	}

	result, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, "", mapError(err)
	}

	keys := make([]string, 0, len(result.Contents))
	for _, object := range result.Contents {
		keys = append(keys, aws.ToString(object.Key))
	}
	return keys, aws.ToString(result.NextContinuationToken), nil
}

func (s *Store) ListVersions(ctx context.Context, key, pageToken string) (*creativestore.VersionPage, error) {
	input := &s3.ListObjectVersionsInput{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(key),
		MaxKeys: aws.Int32(versionPageSize),
	}
	if pageToken != "" {
		keyMarker, versionMarker, _ := strings.Cut(pageToken, "|")
		input.KeyMarker = aws.String(keyMarker)
		input.VersionIdMarker = aws.String(versionMarker)
	}

	result, err := s.client.ListObjectVersions(ctx, input)
	if err != nil {
		return nil, mapError(err)
	}

	// The backend interleaves versions and delete markers in two separate
	// lists; merge them back into one newest-first chain.
	page := &creativestore.VersionPage{}
	for _, v := range result.Versions {
		if aws.ToString(v.Key) != key {
			continue
		}
		page.Versions = append(page.Versions, creativestore.VersionInfo{
			VersionID:    aws.ToString(v.VersionId),
			IsLatest:     aws.ToBool(v.IsLatest),
			ETag:         aws.ToString(v.ETag),
			LastModified: aws.ToTime(v.LastModified),
		})
	}
	for _, m := range result.DeleteMarkers {
		if aws.ToString(m.Key) != key {
			continue
		}
		page.Versions = append(page.Versions, creativestore.VersionInfo{
			VersionID:      aws.ToString(m.VersionId),
			IsDeleteMarker: true,
			IsLatest:       aws.ToBool(m.IsLatest),
			LastModified:   aws.ToTime(m.LastModified),
		})
	}
	sort.SliceStable(page.Versions, func(i, j int) bool {
		return page.Versions[i].LastModified.After(page.Versions[j].LastModified)
	})

	if aws.ToBool(result.IsTruncated) {
		page.NextToken = aws.ToString(result.NextKeyMarker) + "|" + aws.ToString(result.NextVersionIdMarker)
	}
	return page, nil
}

func (s *Store) Copy(ctx context.Context, srcKey, dstKey string, opts creativestore.PutOptions) error {
	input := &s3.CopyObjectInput{
		Bucket:            aws.String(s.bucket),
		CopySource:        aws.String(s.bucket + "/" + srcKey),
		Key:               aws.String(dstKey),
		MetadataDirective: types.MetadataDirectiveReplace,
		Metadata:          opts.Metadata,
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if opts.ACL != "" {
		input.ACL = types.ObjectCannedACL(opts.ACL)
	}
	if opts.CacheControl != "" {
		input.CacheControl = aws.String(opts.CacheControl)
	}

	if _, err := s.client.CopyObject(ctx, input); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return mapError(err)
	}
	return nil
}

func (s *Store) CreateMultipartUpload(ctx context.Context, key string, opts creativestore.PutOptions) (string, error) {
	input := &s3.CreateMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		Metadata: opts.Metadata,
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}

	result, err := s.client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return "", mapError(err)
	}
	return aws.ToString(result.UploadId), nil
}

func (s *Store) UploadPart(ctx context.Context, key, uploadID string, partNumber int32, body io.Reader, size int64) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("failed to read part body: %w", err)
	}

	result, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(partNumber),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return "", mapError(err)
	}
	return aws.ToString(result.ETag), nil
}

func (s *Store) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []creativestore.FilePart) (string, error) {
	completed := make([]types.CompletedPart, 0, len(parts))
	for _, part := range parts {
		completed = append(completed, types.CompletedPart{
			PartNumber: aws.Int32(part.Number),
			ETag:       aws.String(part.ETag),
		})
	}

	result, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		return "", mapError(err)
	}
	return aws.ToString(result.ETag), nil
}

func (s *Store) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchUpload" {
			return nil
		}
		return mapError(err)
	}
	return nil
}

// mapError rewrites backend absence signals into the storage-level sentinel.
func mapError(err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return creativestore.ErrNotFound
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchVersion":
			return creativestore.ErrNotFound
		}
	}
	return err
}
