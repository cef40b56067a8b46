package preprocessor

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStoreConfig describes an S3 compatible bucket holding config
// sources.
type ObjectStoreConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	// Prefix is the key prefix the initial root points at.
	Prefix string
	UseSSL bool
}

// ObjectResolver resolves includes against objects in a bucket. Object keys
// play the role of paths; a leading slash starts at the bucket's top level.
type ObjectResolver struct {
	ctx    context.Context
	client *minio.Client
	bucket string
	root   string
}

func NewObjectResolver(ctx context.Context, cfg ObjectStoreConfig) (*ObjectResolver, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	r := &ObjectResolver{ctx: ctx, client: client, bucket: bucket}
	if err := r.SetCurrentRoot("/" + strings.Trim(cfg.Prefix, "/")); err != nil {
		return nil, err
	}
	return r, nil
}

// Resolve maps p to an object key. Keys never begin with a slash.
func (r *ObjectResolver) Resolve(p string) (string, bool) {
	p = strings.ReplaceAll(strings.TrimSpace(p), `\`, "/")
	if p == "" {
		return "", false
	}
	if !strings.HasPrefix(p, "/") {
		p = path.Join(r.root, p)
	}
	key := strings.TrimPrefix(path.Clean(p), "/")
	if key == "" || key == "." {
		return "", false
	}
	return key, true
}

func (r *ObjectResolver) Open(p string) (io.ReadCloser, error) {
	key, ok := r.Resolve(p)
	if !ok {
		return nil, fmt.Errorf("open %s: %w", p, fs.ErrNotExist)
	}
	obj, err := r.client.GetObject(r.ctx, r.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NoSuchBucket" {
			return nil, fmt.Errorf("open %s: %w", key, fs.ErrNotExist)
		}
		return nil, err
	}
	return obj, nil
}

func (r *ObjectResolver) Exists(p string) bool {
	key, ok := r.Resolve(p)
	if !ok {
		return false
	}
	if _, err := r.client.StatObject(r.ctx, r.bucket, key, minio.StatObjectOptions{}); err == nil {
		return true
	}
	// A key prefix with objects below it counts as a directory.
	ctx, cancel := context.WithCancel(r.ctx)
	defer cancel()
	obj, ok := <-r.client.ListObjects(ctx, r.bucket, minio.ListObjectsOptions{Prefix: key + "/", MaxKeys: 1})
	return ok && obj.Err == nil
}

func (r *ObjectResolver) IsFile(p string) bool {
	key, ok := r.Resolve(p)
	if !ok || strings.HasSuffix(key, "/") {
		return false
	}
	_, err := r.client.StatObject(r.ctx, r.bucket, key, minio.StatObjectOptions{})
	return err == nil
}

// SetCurrentRoot accepts a key prefix with or without the leading slash.
func (r *ObjectResolver) SetCurrentRoot(root string) error {
	root = strings.ReplaceAll(strings.TrimSpace(root), `\`, "/")
	if strings.Contains("/"+root+"/", "/../") {
		return fmt.Errorf("root path %q leaves the bucket", root)
	}
	r.root = path.Clean("/" + root)
	return nil
}

func (r *ObjectResolver) CurrentRoot() string {
	return r.root
}

func (r *ObjectResolver) Bucket() string {
	return r.bucket
}
