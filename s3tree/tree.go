// Package s3tree implements a [mimic.MutableTree] stored in an S3 bucket.
// Each namespace lives under its own "<namespace>/" key prefix; directories
// are derived from key prefixes.
package s3tree

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/brettbedarf/mimic"
	"github.com/brettbedarf/mimic/internal/util"
)

// DefaultTimeout bounds each call to the bucket
const DefaultTimeout = 10 * time.Second

// mtimeKey is the object metadata entry holding the file's LastModified, so
// explicit times survive a round trip through the bucket
const mtimeKey = "mimic-mtime"

// Client is the subset of [s3.Client] used by the tree
type Client interface {
	s3.ListObjectsV2APIClient
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

var _ Client = (*s3.Client)(nil)

// Tree stores files as objects keyed "<namespace>/<path>".
type Tree struct {
	client   Client
	bucket   string
	prefix   string
	readOnly bool
	timeout  time.Duration
	maxSize  int64
	now      func() time.Time
	logger   util.Logger
}

var _ mimic.MutableTree = (*Tree)(nil)

// Option configures a [Tree]
type Option func(*Tree)

// WithReadOnly makes the tree reject every write
func WithReadOnly() Option {
	return func(t *Tree) { t.readOnly = true }
}

// WithTimeout overrides [DefaultTimeout]
func WithTimeout(d time.Duration) Option {
	return func(t *Tree) { t.timeout = d }
}

// WithClock replaces time.Now for default modification times
func WithClock(now func() time.Time) Option {
	return func(t *Tree) { t.now = now }
}

// New creates a tree over bucket. The access key is not used: bucket access
// is governed by the client's credentials.
func New(client Client, bucket, namespace, accessKey string, opts ...Option) (*Tree, error) {
	if bucket == "" {
		return nil, fmt.Errorf("no bucket configured")
	}
	if strings.Contains(namespace, mimic.Separator) {
		return nil, fmt.Errorf("invalid namespace %q", namespace)
	}
	t := &Tree{
		client:  client,
		bucket:  bucket,
		timeout: DefaultTimeout,
		maxSize: mimic.MaxFileSize,
		now:     time.Now,
		logger:  util.GetLogger("s3tree").With().Str("bucket", bucket).Str("namespace", namespace).Logger(),
	}
	if namespace != "" {
		t.prefix = namespace + mimic.Separator
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *Tree) IsMutable() bool {
	return !t.readOnly
}

func (t *Tree) key(path string) string {
	return t.prefix + mimic.CleanPath(path)
}

// dirKey returns the key prefix shared by everything below the directory
func (t *Tree) dirKey(path string) string {
	if mimic.IsRoot(path) {
		return t.prefix
	}
	return t.key(path) + mimic.Separator
}

func (t *Tree) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), t.timeout)
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}

func (t *Tree) head(path string) (*s3.HeadObjectOutput, bool) {
	if mimic.IsRoot(path) || strings.HasSuffix(path, mimic.Separator) {
		return nil, false
	}
	ctx, cancel := t.opContext()
	defer cancel()
	out, err := t.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(t.key(path)),
	})
	if err != nil {
		if !isNotFound(err) {
			t.logger.Warn().Err(err).Str("path", path).Msg("Head object failed")
		}
		return nil, false
	}
	return out, true
}

// lastModified prefers the stored mtime over the object's own timestamp
func lastModified(meta map[string]string, fallback *time.Time) time.Time {
	if v, ok := meta[mtimeKey]; ok {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return ts
		}
	}
	return aws.ToTime(fallback)
}

func (t *Tree) HasFile(path string) bool {
	_, ok := t.head(path)
	return ok
}

func (t *Tree) HasDirectory(path string) bool {
	if mimic.IsRoot(path) {
		return true
	}
	ctx, cancel := t.opContext()
	defer cancel()
	out, err := t.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(t.bucket),
		Prefix:  aws.String(t.dirKey(path)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		t.logger.Warn().Err(err).Str("path", path).Msg("List objects failed")
		return false
	}
	return len(out.Contents) > 0
}

func (t *Tree) GetFileContents(path string) ([]byte, bool) {
	rec, ok := t.get(t.key(path))
	return rec.Contents, ok
}

func (t *Tree) get(key string) (mimic.FileRecord, bool) {
	if key == t.prefix || strings.HasSuffix(key, mimic.Separator) {
		return mimic.FileRecord{}, false
	}
	ctx, cancel := t.opContext()
	defer cancel()
	out, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if !isNotFound(err) {
			t.logger.Warn().Err(err).Str("key", key).Msg("Get object failed")
		}
		return mimic.FileRecord{}, false
	}
	defer out.Body.Close()
	data, err := io.ReadAll(io.LimitReader(out.Body, t.maxSize+1))
	if err != nil {
		t.logger.Warn().Err(err).Str("key", key).Msg("Failed to read object")
		return mimic.FileRecord{}, false
	}
	if int64(len(data)) > t.maxSize {
		t.logger.Warn().Str("key", key).Int64("limit", t.maxSize).Msg("Object too large")
		return mimic.FileRecord{}, false
	}
	return mimic.FileRecord{
		Path:         strings.TrimPrefix(key, t.prefix),
		Contents:     data,
		LastModified: lastModified(out.Metadata, out.LastModified),
	}, true
}

func (t *Tree) GetFileSize(path string) (int64, bool) {
	out, ok := t.head(path)
	if !ok {
		return 0, false
	}
	return aws.ToInt64(out.ContentLength), true
}

func (t *Tree) GetFileLastModified(path string) (time.Time, bool) {
	out, ok := t.head(path)
	if !ok {
		return time.Time{}, false
	}
	return lastModified(out.Metadata, out.LastModified), true
}

// list pages through every object under keyPrefix. With delimit set, keys
// are grouped at the next separator and returned as common prefixes.
func (t *Tree) list(keyPrefix string, delimit bool) (objects []types.Object, prefixes []string, err error) {
	ctx, cancel := t.opContext()
	defer cancel()
	in := &s3.ListObjectsV2Input{
		Bucket: aws.String(t.bucket),
		Prefix: aws.String(keyPrefix),
	}
	if delimit {
		in.Delimiter = aws.String(mimic.Separator)
	}
	pages := s3.NewListObjectsV2Paginator(t.client, in)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list %q: %w", keyPrefix, err)
		}
		objects = append(objects, page.Contents...)
		for _, cp := range page.CommonPrefixes {
			prefixes = append(prefixes, aws.ToString(cp.Prefix))
		}
	}
	return objects, prefixes, nil
}

func (t *Tree) ListDirectory(path string) ([]string, error) {
	dir := t.dirKey(path)
	objects, prefixes, err := t.list(dir, true)
	if err != nil {
		return nil, err
	}
	if len(objects) == 0 && len(prefixes) == 0 && !mimic.IsRoot(path) {
		return nil, &mimic.NotFoundError{Path: path}
	}
	names := make([]string, 0, len(objects)+len(prefixes))
	for _, p := range prefixes {
		names = append(names, strings.TrimPrefix(p, dir))
	}
	for _, o := range objects {
		if name := strings.TrimPrefix(aws.ToString(o.Key), dir); name != "" {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

func (t *Tree) Files(prefix string) []mimic.FileRecord {
	objects, _, err := t.list(t.prefix+strings.TrimLeft(prefix, mimic.Separator), false)
	if err != nil {
		t.logger.Warn().Err(err).Str("prefix", prefix).Msg("Failed to list files")
		return nil
	}
	files := make([]mimic.FileRecord, 0, len(objects))
	for _, o := range objects {
		if rec, ok := t.get(aws.ToString(o.Key)); ok {
			files = append(files, rec)
		}
	}
	slices.SortFunc(files, func(a, b mimic.FileRecord) int {
		return strings.Compare(a.Path, b.Path)
	})
	return files
}

func (t *Tree) unsupported(op string) error {
	return &mimic.UnsupportedOperationError{Op: op}
}

func (t *Tree) put(rec mimic.FileRecord) error {
	if mimic.IsRoot(rec.Path) || strings.HasSuffix(rec.Path, mimic.Separator) {
		return fmt.Errorf("invalid file path %q", rec.Path)
	}
	mod := rec.LastModified
	if mod.IsZero() {
		mod = t.now()
	}
	ctx, cancel := t.opContext()
	defer cancel()
	_, err := t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(t.bucket),
		Key:           aws.String(t.key(rec.Path)),
		Body:          bytes.NewReader(rec.Contents),
		ContentLength: aws.Int64(rec.Size()),
		Metadata:      map[string]string{mtimeKey: mod.UTC().Format(time.RFC3339Nano)},
	})
	if err != nil {
		return fmt.Errorf("failed to put %q: %w", rec.Path, err)
	}
	return nil
}

func (t *Tree) SetFile(path string, contents []byte) error {
	if t.readOnly {
		return t.unsupported("SetFile")
	}
	return t.put(mimic.FileRecord{Path: path, Contents: contents})
}

func (t *Tree) PutFiles(files []mimic.FileRecord) error {
	if t.readOnly {
		return t.unsupported("PutFiles")
	}
	for _, f := range files {
		if err := t.put(f); err != nil {
			return err
		}
	}
	t.logger.Debug().Int("files", len(files)).Msg("Stored files")
	return nil
}

func (t *Tree) deleteKey(key string) error {
	ctx, cancel := t.opContext()
	defer cancel()
	_, err := t.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

// deleteUnder removes every object under keyPrefix and reports how many
// were removed
func (t *Tree) deleteUnder(keyPrefix string) (int, error) {
	objects, _, err := t.list(keyPrefix, false)
	if err != nil {
		return 0, err
	}
	for i, o := range objects {
		if err := t.deleteKey(aws.ToString(o.Key)); err != nil {
			return i, err
		}
	}
	return len(objects), nil
}

func (t *Tree) Clear() error {
	if t.readOnly {
		return t.unsupported("Clear")
	}
	n, err := t.deleteUnder(t.prefix)
	t.logger.Debug().Int("deleted", n).Msg("Cleared tree")
	return err
}

// copySource builds the URL-encoded "bucket/key" CopyObject expects
func (t *Tree) copySource(key string) string {
	segs := strings.Split(key, mimic.Separator)
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return t.bucket + mimic.Separator + strings.Join(segs, mimic.Separator)
}

func (t *Tree) MoveFile(path, newpath string) (bool, error) {
	if t.readOnly {
		return false, t.unsupported("MoveFile")
	}
	if !t.HasFile(path) {
		return false, nil
	}
	if mimic.CleanPath(path) == mimic.CleanPath(newpath) {
		return true, nil
	}
	if mimic.IsRoot(newpath) || strings.HasSuffix(newpath, mimic.Separator) {
		return false, fmt.Errorf("invalid file path %q", newpath)
	}

	ctx, cancel := t.opContext()
	defer cancel()
	_, err := t.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(t.bucket),
		Key:        aws.String(t.key(newpath)),
		CopySource: aws.String(t.copySource(t.key(path))),
	})
	if err != nil {
		return false, fmt.Errorf("failed to copy %q to %q: %w", path, newpath, err)
	}
	if err := t.deleteKey(t.key(path)); err != nil {
		return false, err
	}
	return true, nil
}

func (t *Tree) DeletePath(path string) (bool, error) {
	if t.readOnly {
		return false, t.unsupported("DeletePath")
	}
	if t.HasFile(path) {
		if err := t.deleteKey(t.key(path)); err != nil {
			return false, err
		}
		return true, nil
	}
	n, err := t.deleteUnder(t.dirKey(path))
	return n > 0, err
}
