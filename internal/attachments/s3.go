package attachments

import (
	"bytes"
	"context"
	"mime"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/keithlinneman/tripdesk/internal/cryptoutil"
	"github.com/keithlinneman/tripdesk/internal/log"
	"github.com/keithlinneman/tripdesk/internal/xerrors"
)

// s3API is the subset of *s3.Client used here
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type S3Options struct {
	Logger log.Logger

	// objects land at s3://{Bucket}/{Prefix}/{trip}/{attachment}/{filename}
	Bucket string
	Prefix string

	// AWS config (uses default chain if nil)
	AWSConfig *aws.Config
}

type S3Storage struct {
	bucket    string
	prefix    string
	client    s3API
	presigner presignAPI
	logger    log.Logger
}

// NewS3Storage builds an S3-backed Storage from the default AWS credential
// chain unless opts.AWSConfig is set.
func NewS3Storage(ctx context.Context, opts S3Options) (*S3Storage, error) {
	if opts.Bucket == "" {
		return nil, xerrors.New("attachments bucket is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}

	var awsCfg aws.Config
	if opts.AWSConfig != nil {
		awsCfg = *opts.AWSConfig
	} else {
		var err error
		awsCfg, err = config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, xerrors.Wrap(err, "load AWS config")
		}
	}

	client := s3.NewFromConfig(awsCfg)
	return &S3Storage{
		bucket:    opts.Bucket,
		prefix:    strings.Trim(opts.Prefix, "/"),
		client:    client,
		presigner: s3.NewPresignClient(client),
		logger:    opts.Logger,
	}, nil
}

func (s *S3Storage) fullKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

// Put uploads body with a SHA-256 checksum S3 verifies server side.
func (s *S3Storage) Put(ctx context.Context, key, contentType string, body []byte) error {
	full := s.fullKey(key)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:            aws.String(s.bucket),
		Key:               aws.String(full),
		Body:              bytes.NewReader(body),
		ContentLength:     aws.Int64(int64(len(body))),
		ContentType:       aws.String(contentType),
		ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
		ChecksumSHA256:    aws.String(cryptoutil.SHA256Base64(body)),
	})
	if err != nil {
		return xerrors.Wrapf(err, "put s3://%s/%s", s.bucket, full)
	}
	s.logger.Debug(ctx, "stored attachment", "bucket", s.bucket, "key", full, "bytes", len(body))
	return nil
}

// SignedURL presigns a GET that downloads rather than renders the object.
func (s *S3Storage) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	full := s.fullKey(key)
	filename := key[strings.LastIndex(key, "/")+1:]
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(s.bucket),
		Key:                        aws.String(full),
		ResponseContentDisposition: aws.String(contentDisposition(filename)),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", xerrors.Wrapf(err, "presign s3://%s/%s", s.bucket, full)
	}
	return req.URL, nil
}

func (s *S3Storage) Delete(ctx context.Context, key string) error {
	full := s.fullKey(key)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(full),
	})
	if err != nil {
		return xerrors.Wrapf(err, "delete s3://%s/%s", s.bucket, full)
	}
	return nil
}

// Check implements health.Probe by confirming the bucket is reachable.
func (s *S3Storage) Check(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return xerrors.Wrapf(err, "head bucket %s", s.bucket)
	}
	return nil
}

func contentDisposition(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}
