package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"path"
	"path/filepath"
	"strings"

	"github.com/jo-hoe/reelsmith/internal/common"
	"github.com/jo-hoe/reelsmith/internal/objectstore"
)

// Uploader accepts static image uploads and hands them to the object store.
// It is a stateless pass-through: no record or lifecycle is attached to an
// uploaded asset, callers reference the returned URL in job submissions.
type Uploader struct {
	objects objectstore.Store
}

var allowedImageMimes = map[string]string{
	common.MimeImagePNG:  ".png",
	common.MimeImageJPEG: ".jpg",
	common.MimeImageJPG:  ".jpg",
}

func NewUploader(objects objectstore.Store) *Uploader {
	return &Uploader{objects: objects}
}

// SaveMultipartImage validates a png/jpeg upload and stores it under a
// random key in the uploads prefix. It returns the public URL of the stored
// asset and the resolved mime type.
func (u *Uploader) SaveMultipartImage(ctx context.Context, fileHeader *multipart.FileHeader, maxBytes int64) (string, string, error) {
	if fileHeader == nil {
		return "", "", fmt.Errorf("no file provided")
	}
	mimeType := fileHeader.Header.Get("Content-Type")
	// Some clients set application/octet-stream for uploads; treat it as unknown and fall back to extension.
	if mimeType == "" || strings.EqualFold(strings.TrimSpace(mimeType), "application/octet-stream") {
		ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
		mimeType = mime.TypeByExtension(ext)
	}
	if !isAllowedImageMime(mimeType) {
		return "", "", fmt.Errorf("unsupported content type: %s", mimeType)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return "", "", fmt.Errorf("open uploaded file: %w", err)
	}
	defer func() { _ = src.Close() }()

	data, err := io.ReadAll(io.LimitReader(src, maxBytes))
	if err != nil {
		return "", "", fmt.Errorf("read upload: %w", err)
	}

	key := path.Join(common.UploadsDirName, randomHex(16)+pickExtension(mimeType, fileHeader.Filename))
	url, err := u.objects.Put(ctx, key, data, mimeType)
	if err != nil {
		return "", "", fmt.Errorf("store upload: %w", err)
	}
	return url, mimeType, nil
}

func isAllowedImageMime(mimeType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	_, ok := allowedImageMimes[mt]
	return ok
}

func pickExtension(mimeType, original string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if ext, ok := allowedImageMimes[mt]; ok {
		return ext
	}
	ext := strings.ToLower(filepath.Ext(original))
	if ext == "" {
		return ".bin"
	}
	return ext
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
