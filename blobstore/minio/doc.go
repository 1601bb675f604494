// Package minio stores volume images in MinIO or any S3-compatible service
// (Ceph, Garage, SeaweedFS) through the MinIO Go client.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil { ... }
//	store := minioblob.NewStore(client, "images", "volumes/")
//	vol, err := sectorfs.New(sectorfs.WithStore(store))
package minio
