// Package media uploads user images to an S3-compatible bucket and returns
// their public URLs.
package media

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

var (
	ErrEmptyPath       = errors.New("no local file to upload")
	ErrUnsupportedType = errors.New("unsupported media type")
)

type Config struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
	UsePathStyle  bool
}

// Asset describes an uploaded object.
type Asset struct {
	Key         string
	URL         string
	ContentType string
	Size        int64
}

// objectPutter is the part of *s3.Client the store needs.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Store struct {
	client  objectPutter
	bucket  string
	baseURL string
	logger  *zap.Logger
}

func NewStore(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return newStore(client, cfg.Bucket, cfg.PublicBaseURL, logger), nil
}

func newStore(client objectPutter, bucket, baseURL string, logger *zap.Logger) *Store {
	return &Store{
		client:  client,
		bucket:  bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.Named("media"),
	}
}

// Upload stores the file at localPath and returns its public URL. The local
// file is removed whether or not the upload succeeds.
func (s *Store) Upload(ctx context.Context, localPath string) (*Asset, error) {
	if localPath == "" {
		return nil, ErrEmptyPath
	}
	defer s.remove(localPath)

	mtype, err := DetectImage(localPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat upload: %w", err)
	}

	key, err := objectKey(time.Now().UTC(), mtype.Extension())
	if err != nil {
		return nil, err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(mtype.String()),
	})
	if err != nil {
		s.logger.Error("upload failed", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("failed to upload %s: %w", key, err)
	}

	s.logger.Debug("uploaded", zap.String("key", key), zap.Int64("size", info.Size()))

	return &Asset{
		Key:         key,
		URL:         s.baseURL + "/" + key,
		ContentType: mtype.String(),
		Size:        info.Size(),
	}, nil
}

func (s *Store) remove(localPath string) {
	if err := os.Remove(localPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("failed to remove temp file", zap.String("path", localPath), zap.Error(err))
	}
}

// DetectImage sniffs the file's content type and rejects anything that is not
// an allowed image with ErrUnsupportedType.
func DetectImage(localPath string) (*mimetype.MIME, error) {
	if localPath == "" {
		return nil, ErrEmptyPath
	}
	mtype, err := mimetype.DetectFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to detect media type: %w", err)
	}
	if !mimetype.EqualsAny(mtype.String(), allowedTypes...) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mtype.String())
	}
	return mtype, nil
}

var allowedTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
}

// objectKey lays objects out by day with a ULID name, so keys sort by upload time.
func objectKey(now time.Time, ext string) (string, error) {
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("failed to generate object key: %w", err)
	}
	return path.Join("images", now.Format("2006/01/02"), strings.ToLower(id.String())+ext), nil
}
