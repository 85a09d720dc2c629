// Package s3 implements the blobstore contract on AWS S3 using
// aws-sdk-go-v2. Reads use ranged GETs; writes stream through a multipart
// uploader.
package s3
