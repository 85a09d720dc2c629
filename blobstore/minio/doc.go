// Package minio implements the blobstore contract on MinIO and other
// S3-compatible object stores using minio-go.
package minio
