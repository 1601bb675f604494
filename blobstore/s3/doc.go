// Package s3 stores volume images in Amazon S3.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	if err != nil { ... }
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "volumes/")
//	vol, err := sectorfs.New(sectorfs.WithStore(store))
//
// Images up to UploadConfig.PartSize are sent with a single PutObject carrying
// a CRC32C checksum; larger images use the multipart uploader. Reads are
// ranged GETs, so loading an image never buffers more than the device asks for.
package s3
