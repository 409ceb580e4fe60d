package persist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// ObjectOptions configures an ObjectAdapter.
type ObjectOptions struct {
	Endpoint string
	Bucket   string
	// Prefix is prepended to every object key, e.g. "kizuna/indices".
	Prefix    string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Logger    *zap.Logger
}

// ObjectAdapter stores each class as two objects, <prefix>/<class>.vec and
// <prefix>/<class>.idmap, in an S3-compatible bucket.
type ObjectAdapter struct {
	client *minio.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// NewObjectAdapter creates a client for opts.Endpoint. Static credentials are
// used when both keys are set, otherwise the AWS_* environment variables.
func NewObjectAdapter(opts ObjectOptions) (*ObjectAdapter, error) {
	if opts.Endpoint == "" || opts.Bucket == "" {
		return nil, errors.New("object store endpoint and bucket are required")
	}
	creds := credentials.NewEnvAWS()
	if opts.AccessKey != "" && opts.SecretKey != "" {
		creds = credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, "")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ObjectAdapter{client: client, bucket: opts.Bucket, prefix: opts.Prefix, logger: logger}, nil
}

// Keys returns the vector and identity object keys for class.
func (a *ObjectAdapter) Keys(class string) (vectors, idmap string) {
	return path.Join(a.prefix, class+".vec"), path.Join(a.prefix, class+".idmap")
}

// EnsureBucket creates the bucket when it does not exist.
func (a *ObjectAdapter) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", a.bucket, err)
	}
	return nil
}

// Save uploads the vector region, then the identity region. An interrupted
// save is caught on Load by the identity region's vector checksum.
func (a *ObjectAdapter) Save(ctx context.Context, class string, snap *Snapshot) error {
	vecData, idData, err := encode(snap)
	if err != nil {
		return err
	}
	vecKey, idKey := a.Keys(class)
	if err := a.put(ctx, vecKey, vecData); err != nil {
		return fmt.Errorf("save vectors %s: %w", class, err)
	}
	if err := a.put(ctx, idKey, idData); err != nil {
		return fmt.Errorf("save identity map %s: %w", class, err)
	}
	a.logger.Debug("snapshot saved",
		zap.String("class", class),
		zap.String("backend", "s3"),
		zap.String("bucket", a.bucket),
		zap.Int("vectors", len(snap.Vectors)))
	return nil
}

func (a *ObjectAdapter) put(ctx context.Context, key string, data []byte) error {
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	return err
}

// Load downloads and validates both regions.
func (a *ObjectAdapter) Load(ctx context.Context, class string) (*Snapshot, error) {
	vecKey, idKey := a.Keys(class)
	vecData, err := a.get(ctx, vecKey)
	if isNoSuchKey(err) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("load vectors %s: %w", class, err)
	}
	idData, err := a.get(ctx, idKey)
	if isNoSuchKey(err) {
		return nil, fmt.Errorf("%w: identity region missing for %s", ErrCorruptState, class)
	}
	if err != nil {
		return nil, fmt.Errorf("load identity map %s: %w", class, err)
	}
	return decode(vecData, idData)
}

func (a *ObjectAdapter) get(ctx context.Context, key string) ([]byte, error) {
	obj, err := a.client.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

func isNoSuchKey(err error) bool {
	if err == nil {
		return false
	}
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}
