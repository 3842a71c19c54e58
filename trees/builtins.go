package trees

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/brettbedarf/mimic"
	"github.com/brettbedarf/mimic/dirtree"
	"github.com/brettbedarf/mimic/httptree"
	"github.com/brettbedarf/mimic/memtree"
	"github.com/brettbedarf/mimic/s3tree"
)

type BuiltInTreeType = string

const (
	MemoryTreeType BuiltInTreeType = "memory"
	DirTreeType    BuiltInTreeType = "dir"
	HTTPTreeType   BuiltInTreeType = "http"
	S3TreeType     BuiltInTreeType = "s3"
)

// s3ClientTimeout bounds loading the AWS configuration for a new client
const s3ClientTimeout = 10 * time.Second

// memoryTrees holds one in-memory tree per namespace for the life of the
// process so every request for a namespace sees the same files.
var memoryTrees = xsync.NewMap[string, *memtree.Tree]()

// s3Clients shares one client per region and endpoint
var s3Clients = xsync.NewMap[s3tree.ClientConfig, *s3.Client]()

// RegisterBuiltins registers all built-in tree types by default
// or only the specific ones if types are provided
func RegisterBuiltins(types ...BuiltInTreeType) {
	if len(types) == 0 {
		types = append(types, MemoryTreeType, DirTreeType, HTTPTreeType, S3TreeType)
	}

	for _, key := range types {
		switch key {
		case MemoryTreeType:
			Register(MemoryTreeType, newMemory)
		case DirTreeType:
			Register(DirTreeType, newDir)
		case HTTPTreeType:
			Register(HTTPTreeType, newHTTP)
		case S3TreeType:
			Register(S3TreeType, newS3)
		}
	}
}

func newMemory(opts Options, namespace, accessKey string) (mimic.Tree, error) {
	var memOpts []memtree.Option
	if opts.ReadOnly {
		memOpts = append(memOpts, memtree.WithReadOnly())
	}
	t, _ := memoryTrees.LoadOrStore(namespace, memtree.New(namespace, accessKey, memOpts...))
	return t, nil
}

func newDir(opts Options, namespace, accessKey string) (mimic.Tree, error) {
	var dirOpts []dirtree.Option
	if opts.ReadOnly {
		dirOpts = append(dirOpts, dirtree.WithReadOnly())
	}
	t, err := dirtree.New(opts.Root, namespace, accessKey, dirOpts...)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func newHTTP(opts Options, namespace, accessKey string) (mimic.Tree, error) {
	t, err := httptree.New(opts.URL, namespace, accessKey, httptree.WithHeaders(opts.Headers))
	if err != nil {
		return nil, err
	}
	return t, nil
}

func s3Client(cfg s3tree.ClientConfig) (*s3.Client, error) {
	if c, ok := s3Clients.Load(cfg); ok {
		return c, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s3ClientTimeout)
	defer cancel()
	c, err := s3tree.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c, _ = s3Clients.LoadOrStore(cfg, c)
	return c, nil
}

func newS3(opts Options, namespace, accessKey string) (mimic.Tree, error) {
	client, err := s3Client(s3tree.ClientConfig{Region: opts.Region, Endpoint: opts.URL})
	if err != nil {
		return nil, err
	}
	var s3Opts []s3tree.Option
	if opts.ReadOnly {
		s3Opts = append(s3Opts, s3tree.WithReadOnly())
	}
	t, err := s3tree.New(client, opts.Bucket, namespace, accessKey, s3Opts...)
	if err != nil {
		return nil, err
	}
	return t, nil
}
