/*
Copyright © 2024 the cityscene authors.
This file is part of cityscene.

cityscene is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

cityscene is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with cityscene.  If not, see <http://www.gnu.org/licenses/>.
*/

package cityutil

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/gcsblob"
	"gocloud.dev/blob/memblob"
	"gocloud.dev/blob/s3blob"
	"gocloud.dev/gcp"
)

// IsBlob returns whether the given path is a blob storage location,
// i.e. whether it starts with `gs://`, `s3://`, `file://` or `mem://`.
func IsBlob(path string) bool {
	for _, p := range []string{"gs://", "s3://", "file://", "mem://"} {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

var (
	memMu      sync.Mutex
	memBuckets = make(map[string]*blob.Bucket)
)

// OpenBucket returns the blob storage bucket specified by bucketName,
// where bucketName must be in the format 'provider://name'. The
// accepted providers are "file" for a directory of the local
// filesystem, "mem" for an in-memory bucket that lives as long as the
// process, "gs" for Google Cloud Storage, and "s3" for AWS S3. Cloud
// locations take options as query parameters, for example
// "s3://bucket?region=eu-west-1&endpoint=http://localhost:9000" or
// "gs://bucket?anonymous=true".
func OpenBucket(ctx context.Context, bucketName string) (*blob.Bucket, error) {
	u, err := url.Parse(bucketName)
	if err != nil {
		return nil, fmt.Errorf("cityutil.OpenBucket: %v", err)
	}
	switch u.Scheme {
	case "file":
		return fileblob.OpenBucket(filepath.FromSlash(u.Host+u.Path), nil)
	case "mem":
		memMu.Lock()
		defer memMu.Unlock()
		b, ok := memBuckets[u.Host]
		if !ok {
			b = memblob.OpenBucket(nil)
			memBuckets[u.Host] = b
		}
		return b, nil
	case "gs":
		return gsBucket(ctx, u)
	case "s3":
		return s3Bucket(ctx, u)
	default:
		return nil, fmt.Errorf("cityutil.OpenBucket: invalid provider %s", u.Scheme)
	}
}

// gsBucket opens a Google Cloud Storage bucket with the application
// default credentials, or without credentials if the location has the
// query "anonymous=true".
func gsBucket(ctx context.Context, u *url.URL) (*blob.Bucket, error) {
	var c *gcp.HTTPClient
	if anon, _ := strconv.ParseBool(u.Query().Get("anonymous")); anon {
		c = gcp.NewAnonymousHTTPClient(gcp.DefaultTransport())
	} else {
		creds, err := gcp.DefaultCredentials(ctx)
		if err != nil {
			return nil, fmt.Errorf("cityutil.OpenBucket: gs://%s: %v", u.Host, err)
		}
		if c, err = gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds)); err != nil {
			return nil, fmt.Errorf("cityutil.OpenBucket: gs://%s: %v", u.Host, err)
		}
	}
	b, err := gcsblob.OpenBucket(ctx, c, u.Host, nil)
	if err != nil {
		return nil, fmt.Errorf("cityutil.OpenBucket: gs://%s: %v", u.Host, err)
	}
	return b, nil
}

// defaultRegion is the AWS region used when neither the location nor
// AWS_REGION names one.
const defaultRegion = "us-east-2"

// s3Config returns the session settings for an s3 location. The region
// comes from the "region" query, then AWS_REGION. An "endpoint" query
// points the session at an S3-compatible server, addressed by path.
// Credentials are read from AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY.
func s3Config(u *url.URL) *aws.Config {
	q := u.Query()
	region := q.Get("region")
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = defaultRegion
	}
	c := &aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewEnvCredentials(),
	}
	if ep := q.Get("endpoint"); ep != "" {
		c.Endpoint = aws.String(ep)
		c.S3ForcePathStyle = aws.Bool(true)
	}
	return c
}

func s3Bucket(ctx context.Context, u *url.URL) (*blob.Bucket, error) {
	s, err := session.NewSession(s3Config(u))
	if err != nil {
		return nil, fmt.Errorf("cityutil.OpenBucket: s3://%s: %v", u.Host, err)
	}
	b, err := s3blob.OpenBucket(ctx, s, u.Host, nil)
	if err != nil {
		return nil, fmt.Errorf("cityutil.OpenBucket: s3://%s: %v", u.Host, err)
	}
	return b, nil
}

// splitBlob separates a blob location into its bucket and key. The
// bucket of a file:// location is the directory holding the file.
func splitBlob(path string) (bucket, key string, err error) {
	u, err := url.Parse(path)
	if err != nil {
		return "", "", err
	}
	if u.Scheme == "file" {
		dir, file := filepath.Split(u.Host + u.Path)
		return "file://" + dir, file, nil
	}
	bucket = u.Scheme + "://" + u.Host
	if u.RawQuery != "" {
		bucket += "?" + u.RawQuery
	}
	return bucket, strings.TrimPrefix(u.Path, "/"), nil
}

// fetch returns a local copy of path. Local files are returned as is;
// blobs are downloaded into dir.
func fetch(ctx context.Context, path, dir string) (string, error) {
	if !IsBlob(path) {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("cityutil: %v", err)
		}
		return path, nil
	}
	bucketName, key, err := splitBlob(path)
	if err != nil {
		return "", fmt.Errorf("cityutil: parsing url '%s': %v", path, err)
	}
	bucket, err := OpenBucket(ctx, bucketName)
	if err != nil {
		return "", fmt.Errorf("cityutil: opening bucket for '%s': %v", path, err)
	}
	local := filepath.Join(dir, filepath.Base(key))
	w, err := os.Create(local)
	if err != nil {
		return "", fmt.Errorf("cityutil: creating file for download: %v", err)
	}
	defer w.Close()
	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		return "", fmt.Errorf("cityutil: downloading '%s': %v", path, err)
	}
	defer r.Close()
	if _, err := io.Copy(w, r); err != nil {
		return "", fmt.Errorf("cityutil: downloading '%s': %v", path, err)
	}
	return local, w.Close()
}

type uploader struct {
	// files holds pairs of a local file path and the blob
	// storage path it should be uploaded to.
	files [][2]string
	dir   string
	log   logrus.FieldLogger

	// newBackOff returns the retry policy of each upload.
	newBackOff func() backoff.BackOff
}

// maybeUpload checks whether path refers to a blob storage location. If
// it does, a location in the staging directory is returned, and the
// file will be uploaded to path by upload.
func (u *uploader) maybeUpload(path string) string {
	if !IsBlob(path) {
		return path
	}
	local := filepath.Join(u.dir, fmt.Sprintf("%d_%s", len(u.files), filepath.Base(path)))
	u.files = append(u.files, [2]string{local, path})
	return local
}

// maybeUploadDir is like maybeUpload for a directory that will hold the
// given files.
func (u *uploader) maybeUploadDir(dir string, files ...string) string {
	if !IsBlob(dir) {
		return dir
	}
	local := filepath.Join(u.dir, fmt.Sprintf("%d_dir", len(u.files)))
	for _, f := range files {
		u.files = append(u.files, [2]string{filepath.Join(local, f), strings.TrimSuffix(dir, "/") + "/" + f})
	}
	return local
}

// upload copies the staged files to blob storage, retrying failures.
func (u *uploader) upload(ctx context.Context) error {
	for _, files := range u.files {
		files := files
		if _, err := os.Stat(files[0]); os.IsNotExist(err) {
			u.log.WithField("file", files[1]).Warn("output was not written; not uploading")
			continue
		}
		newBackOff := u.newBackOff
		if newBackOff == nil {
			newBackOff = func() backoff.BackOff { return backoff.NewExponentialBackOff() }
		}
		err := backoff.RetryNotify(
			func() error { return uploadFile(ctx, files[0], files[1]) },
			backoff.WithContext(newBackOff(), ctx),
			func(err error, d time.Duration) {
				u.log.Warnf("%v: retrying in %v", err, d)
			},
		)
		if err != nil {
			return err
		}
		u.log.WithField("file", files[1]).Info("uploaded output")
	}
	return nil
}

func uploadFile(ctx context.Context, local, path string) error {
	r, err := os.Open(local)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("cityutil: opening file '%s' for upload: %v", local, err))
	}
	defer r.Close()
	bucketName, key, err := splitBlob(path)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("cityutil: parsing url '%s' for upload: %v", path, err))
	}
	bucket, err := OpenBucket(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("cityutil: opening bucket to upload file '%s': %v", path, err)
	}
	w, err := bucket.NewWriter(ctx, key, &blob.WriterOptions{})
	if err != nil {
		return fmt.Errorf("cityutil: opening writer to upload file '%s': %v", path, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("cityutil: uploading file '%s' to '%s': %v", local, path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("cityutil: uploading file '%s' to '%s': %v", local, path, err)
	}
	return nil
}
