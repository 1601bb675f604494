package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hupe1980/sectorfs/blobstore"
	sfsminio "github.com/hupe1980/sectorfs/blobstore/minio"
	sfss3 "github.com/hupe1980/sectorfs/blobstore/s3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// openStore builds the image store described by c.
func openStore(ctx context.Context, c *Config) (blobstore.BlobStore, error) {
	var store blobstore.BlobStore

	switch c.Backend {
	case "local":
		store = blobstore.NewLocalStore(c.Root)
	case "s3":
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading aws config: %w", err)
		}
		client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
			if c.Endpoint != "" {
				o.BaseEndpoint = aws.String(c.Endpoint)
				o.UsePathStyle = true
			}
		})
		store = sfss3.NewStore(client, c.Bucket, c.Prefix)
	case "minio":
		client, err := minio.New(c.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(c.AccessKey, c.SecretKey, ""),
			Secure: c.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("creating minio client: %w", err)
		}
		store = sfsminio.NewStore(client, c.Bucket, c.Prefix)
	default:
		return nil, fmt.Errorf("unknown backend %q", c.Backend)
	}

	codec, err := blobstore.ParseCompression(c.Compression)
	if err != nil {
		return nil, err
	}
	if codec != blobstore.CompressionNone {
		store = blobstore.NewCompressedStore(store, codec)
	}
	return store, nil
}
