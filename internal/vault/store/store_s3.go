package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/sync/errgroup"

	"receiptvault/internal/sentinel"
	"receiptvault/internal/vault/models"
)

const (
	objectSuffix      = ".json"
	listFetchParallel = 8
)

// ObjectAPI is the subset of the S3 client the store uses.
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config configures an S3-compatible object store.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// NewS3Client builds an S3 client from static credentials. Endpoint may point
// at any S3-compatible service.
func NewS3Client(cfg S3Config) (*s3.Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, errors.New("s3 credentials are required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := s3.Options{
		Region: region,
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		UsePathStyle: cfg.UsePathStyle,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts), nil
}

// S3Store keeps one JSON object per artifact under <prefix>/artifacts/.
type S3Store struct {
	api    ObjectAPI
	bucket string
	prefix string
}

// NewS3 constructs an object-store backed artifact store.
func NewS3(api ObjectAPI, bucket, prefix string) *S3Store {
	return &S3Store{api: api, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *S3Store) dir() string {
	return path.Join(s.prefix, "artifacts") + "/"
}

func (s *S3Store) objectKey(id string) string {
	return s.dir() + id + objectSuffix
}

func (s *S3Store) Get(ctx context.Context, id string) (*models.Artifact, error) {
	return s.getKey(ctx, s.objectKey(id))
}

func (s *S3Store) getKey(ctx context.Context, key string) (*models.Artifact, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isMissing(err) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get artifact object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read artifact object: %w", err)
	}
	return Decode(data)
}

func (s *S3Store) Put(ctx context.Context, artifact *models.Artifact) error {
	data, err := Encode(artifact)
	if err != nil {
		return err
	}
	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(artifact.ID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put artifact object: %w", err)
	}
	return nil
}

func (s *S3Store) Delete(ctx context.Context, id string) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(id)),
	})
	if err != nil && !isMissing(err) {
		return fmt.Errorf("delete artifact object: %w", err)
	}
	return nil
}

func (s *S3Store) List(ctx context.Context) ([]*models.Artifact, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.dir()),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list artifact objects: %w", err)
		}
		for _, obj := range page.Contents {
			if key := aws.ToString(obj.Key); strings.HasSuffix(key, objectSuffix) {
				keys = append(keys, key)
			}
		}
	}

	var (
		mu  sync.Mutex
		out = make([]*models.Artifact, 0, len(keys))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listFetchParallel)
	for _, key := range keys {
		g.Go(func() error {
			a, err := s.getKey(gctx, key)
			if errors.Is(err, sentinel.ErrNotFound) {
				// Deleted between list and fetch.
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			out = append(out, a)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Ping lists at most one key to confirm the bucket is reachable.
func (s *S3Store) Ping(ctx context.Context) error {
	_, err := s.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(s.dir()),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return fmt.Errorf("ping artifact bucket: %w", err)
	}
	return nil
}

func isMissing(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}
