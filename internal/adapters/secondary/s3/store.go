package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"adapter-persistence-service/internal/config"
	"adapter-persistence-service/internal/core/domain"
	ports "adapter-persistence-service/internal/core/ports/output"
)

const listStatConcurrency = 8

var blobOperations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "adapter_persistence",
	Name:      "blob_operations_total",
	Help:      "Blob-store calls by operation and outcome.",
}, []string{"operation", "outcome"})

type store struct {
	client *minio.Client
	bucket string
}

// NewStore creates an S3-compatible BlobStore. The returned store is meant to
// be built once per process and shared.
func NewStore(cfg *config.S3Config) (ports.BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, domain.ErrMissingBucket
	}

	endpoint, secure, err := parseEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, fmt.Errorf("parse s3 endpoint: %w", err)
	}

	var creds *credentials.Credentials
	if cfg.AccessKeyID != "" {
		creds = credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)
	} else {
		creds = credentials.NewIAM("")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	return &store{client: client, bucket: cfg.Bucket}, nil
}

// parseEndpoint accepts either host[:port] or a URL with scheme.
func parseEndpoint(raw string, useSSL bool) (string, bool, error) {
	if raw == "" {
		return "s3.amazonaws.com", true, nil
	}
	if !strings.Contains(raw, "://") {
		return raw, useSSL, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, err
	}
	switch u.Scheme {
	case "https":
		return u.Host, true, nil
	case "http":
		return u.Host, false, nil
	default:
		return "", false, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

func (s *store) Bucket() string { return s.bucket }

func (s *store) Ping(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return s.fail("ping", s.bucket, err)
	}
	if !ok {
		return s.fail("ping", s.bucket, fmt.Errorf("%w: bucket %s does not exist", domain.ErrTransport, s.bucket))
	}
	blobOperations.WithLabelValues("ping", "ok").Inc()
	return nil
}

func (s *store) Put(ctx context.Context, key string, body io.Reader, size int64, opts ports.PutOptions) (*ports.ObjectInfo, error) {
	info, err := s.client.PutObject(ctx, s.bucket, key, body, size, putOptions(opts))
	if err != nil {
		return nil, s.fail("put", key, err)
	}
	blobOperations.WithLabelValues("put", "ok").Inc()
	return fromUpload(info, opts), nil
}

func (s *store) PutFile(ctx context.Context, key, path string, opts ports.PutOptions) (*ports.ObjectInfo, error) {
	info, err := s.client.FPutObject(ctx, s.bucket, key, path, putOptions(opts))
	if err != nil {
		return nil, s.fail("put_file", key, err)
	}
	blobOperations.WithLabelValues("put_file", "ok").Inc()
	return fromUpload(info, opts), nil
}

func (s *store) Get(ctx context.Context, key string) (io.ReadCloser, *ports.ObjectInfo, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, s.fail("get", key, err)
	}
	// GetObject is lazy; Stat surfaces a missing key before the caller reads.
	st, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, nil, s.fail("get", key, err)
	}
	blobOperations.WithLabelValues("get", "ok").Inc()
	info := fromObject(st)
	return obj, &info, nil
}

func (s *store) GetFile(ctx context.Context, key, path string) error {
	if err := s.client.FGetObject(ctx, s.bucket, key, path, minio.GetObjectOptions{}); err != nil {
		return s.fail("get_file", key, err)
	}
	blobOperations.WithLabelValues("get_file", "ok").Inc()
	return nil
}

func (s *store) Stat(ctx context.Context, key string) (*ports.ObjectInfo, error) {
	st, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, s.fail("stat", key, err)
	}
	blobOperations.WithLabelValues("stat", "ok").Inc()
	info := fromObject(st)
	return &info, nil
}

// List asks for metadata inline, which only MinIO honours. Entries that come
// back without a content type (AWS S3 never sends one) are completed with a
// Stat per object.
func (s *store) List(ctx context.Context, prefix string) ([]ports.ObjectInfo, error) {
	out := make([]ports.ObjectInfo, 0)
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:       prefix,
		Recursive:    true,
		WithMetadata: true,
	}) {
		if obj.Err != nil {
			return nil, s.fail("list", prefix, obj.Err)
		}
		out = append(out, fromObject(obj))
	}
	out, err := completeAttributes(ctx, out, s.Stat)
	if err != nil {
		return nil, err
	}
	blobOperations.WithLabelValues("list", "ok").Inc()
	return out, nil
}

type statFunc func(ctx context.Context, key string) (*ports.ObjectInfo, error)

// completeAttributes stats every entry missing its content type, at most
// listStatConcurrency at a time. Objects deleted since the listing are dropped.
func completeAttributes(ctx context.Context, objs []ports.ObjectInfo, stat statFunc) ([]ports.ObjectInfo, error) {
	gone := make([]bool, len(objs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listStatConcurrency)
	for i := range objs {
		if objs[i].ContentType != "" {
			continue
		}
		i := i
		g.Go(func() error {
			st, err := stat(gctx, objs[i].Key)
			if errors.Is(err, domain.ErrObjectNotFound) {
				gone[i] = true
				return nil
			}
			if err != nil {
				return err
			}
			objs[i].ContentType = st.ContentType
			objs[i].UserMetadata = st.UserMetadata
			if objs[i].ETag == "" {
				objs[i].ETag = st.ETag
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := objs[:0]
	for i, obj := range objs {
		if !gone[i] {
			out = append(out, obj)
		}
	}
	return out, nil
}

func (s *store) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return s.fail("delete", key, err)
	}
	blobOperations.WithLabelValues("delete", "ok").Inc()
	return nil
}

func (s *store) DeleteMany(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	objects := make(chan minio.ObjectInfo)
	go func() {
		defer close(objects)
		for _, key := range keys {
			select {
			case objects <- minio.ObjectInfo{Key: key}:
			case <-ctx.Done():
				return
			}
		}
	}()

	var failed []error
	for rerr := range s.client.RemoveObjects(ctx, s.bucket, objects, minio.RemoveObjectsOptions{}) {
		log.WithError(rerr.Err).WithField("key", rerr.ObjectName).Warn("s3 batch delete entry failed")
		failed = append(failed, rerr.Err)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	deleted := len(keys) - len(failed)
	if len(failed) > 0 {
		return deleted, s.fail("delete_many", fmt.Sprintf("%d keys", len(keys)), errors.Join(failed...))
	}
	blobOperations.WithLabelValues("delete_many", "ok").Inc()
	return deleted, nil
}

func (s *store) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if _, err := s.Stat(ctx, key); err != nil {
		return "", err
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", s.fail("presign", key, err)
	}
	blobOperations.WithLabelValues("presign", "ok").Inc()
	return u.String(), nil
}

// fail records the failure and maps it onto the domain error kinds.
func (s *store) fail(op, key string, err error) error {
	mapped := mapError(op, key, err)
	outcome := "error"
	switch {
	case errors.Is(mapped, domain.ErrNotFound):
		outcome = "not_found"
	case errors.Is(mapped, domain.ErrConflict):
		outcome = "conflict"
	}
	blobOperations.WithLabelValues(op, outcome).Inc()
	return mapped
}

func mapError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, domain.ErrTransport) {
		return err
	}

	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey",
		resp.Code == "NotFound",
		resp.StatusCode == http.StatusNotFound && resp.Code != "NoSuchBucket":
		return domain.ErrObjectNotFound
	case resp.Code == "PreconditionFailed",
		resp.Code == "ConditionalRequestConflict",
		resp.StatusCode == http.StatusPreconditionFailed:
		return domain.ErrPreconditionFailed
	}
	return fmt.Errorf("%w: s3 %s %s: %w", domain.ErrTransport, op, key, err)
}

func putOptions(opts ports.PutOptions) minio.PutObjectOptions {
	po := minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		UserMetadata: opts.UserMetadata,
	}
	switch {
	case opts.IfMatch != "":
		po.SetMatchETag(opts.IfMatch)
	case opts.IfNoneMatch != "":
		po.SetMatchETagExcept(opts.IfNoneMatch)
	}
	return po
}

func fromUpload(info minio.UploadInfo, opts ports.PutOptions) *ports.ObjectInfo {
	return &ports.ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		ETag:         info.ETag,
		ContentType:  opts.ContentType,
		LastModified: info.LastModified,
		UserMetadata: opts.UserMetadata,
	}
}

// fromObject normalizes user metadata keys to their bare lower-case names.
// Stat strips the x-amz-meta- prefix but a MinIO listing keeps it, and the
// listing carries the content type among the metadata.
func fromObject(obj minio.ObjectInfo) ports.ObjectInfo {
	info := ports.ObjectInfo{
		Key:          obj.Key,
		Size:         obj.Size,
		ETag:         obj.ETag,
		ContentType:  obj.ContentType,
		LastModified: obj.LastModified,
	}
	if len(obj.UserMetadata) == 0 {
		return info
	}
	info.UserMetadata = make(map[string]string, len(obj.UserMetadata))
	for k, v := range obj.UserMetadata {
		name := strings.ToLower(k)
		if name == "content-type" {
			if info.ContentType == "" {
				info.ContentType = v
			}
			continue
		}
		info.UserMetadata[strings.TrimPrefix(name, "x-amz-meta-")] = v
	}
	return info
}
