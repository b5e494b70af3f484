package utils

import (
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	storage "github.com/supabase-community/storage-go"
)

// Uploader stores a photo and returns its public URL.
type Uploader interface {
	Upload(fh *multipart.FileHeader, folder string) (string, error)
}

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/heic": true,
}

const MaxUploadSize = 10 << 20

type SupabaseUploader struct {
	client *storage.Client
	bucket string
}

// NewSupabaseUploader returns nil when url or key is empty.
func NewSupabaseUploader(url, key, bucket string) *SupabaseUploader {
	if url == "" || key == "" {
		return nil
	}
	return &SupabaseUploader{
		client: storage.NewClient(strings.TrimRight(url, "/")+"/storage/v1", key, nil),
		bucket: bucket,
	}
}

// CheckImage rejects files that are too large or not images.
func CheckImage(fh *multipart.FileHeader) (string, error) {
	if fh.Size > MaxUploadSize {
		return "", fmt.Errorf("file exceeds %d MB", MaxUploadSize>>20)
	}
	ct := fh.Header.Get("Content-Type")
	if !allowedImageTypes[ct] {
		return "", fmt.Errorf("unsupported content type %q", ct)
	}
	return ct, nil
}

func (u *SupabaseUploader) Upload(fh *multipart.FileHeader, folder string) (string, error) {
	contentType, err := CheckImage(fh)
	if err != nil {
		return "", err
	}
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()

	objectPath := ObjectPath(folder, uuid.NewString(), filepath.Ext(fh.Filename))

	upsert := true
	options := storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	}
	var reader io.Reader = f
	if _, err := u.client.UploadFile(u.bucket, objectPath, reader, options); err != nil {
		return "", err
	}

	publicURL := u.client.GetPublicUrl(u.bucket, objectPath)
	return publicURL.SignedURL, nil
}

// ObjectPath builds "<folder>/<id><ext>", dropping an empty folder.
func ObjectPath(folder, id, ext string) string {
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return id + strings.ToLower(ext)
	}
	return folder + "/" + id + strings.ToLower(ext)
}
