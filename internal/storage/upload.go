package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
)

const uploadsDirName = "uploads"

// Uploader stores uploaded source media on disk until its job finishes.
type Uploader struct {
	baseDir string
}

var allowedMediaMimes = map[string]string{
	"video/mp4":        ".mp4",
	"video/quicktime":  ".mov",
	"video/x-matroska": ".mkv",
	"video/webm":       ".webm",
	"audio/mpeg":       ".mp3",
	"audio/wav":        ".wav",
	"audio/x-wav":      ".wav",
	"audio/mp4":        ".m4a",
	"audio/x-m4a":      ".m4a",
}

// NewUploader creates an uploader that stores to baseDir/uploads.
func NewUploader(baseDir string) *Uploader {
	return &Uploader{baseDir: filepath.Join(baseDir, uploadsDirName)}
}

// SaveMultipartMedia validates and stores an uploaded media file to disk.
// It returns the absolute file path and a cleanup function that deletes the
// file; the caller invokes cleanup once the job no longer needs the source.
func (u *Uploader) SaveMultipartMedia(fileHeader *multipart.FileHeader, maxBytes int64) (string, func() error, error) {
	if fileHeader == nil {
		return "", nil, fmt.Errorf("no file provided")
	}
	mimeType := fileHeader.Header.Get("Content-Type")
	// Some clients set application/octet-stream; treat it as unknown and
	// fall back to the filename extension.
	if mimeType == "" || strings.EqualFold(strings.TrimSpace(mimeType), "application/octet-stream") {
		ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
		mimeType = mime.TypeByExtension(ext)
		if mimeType == "" {
			mimeType = mimeByMediaExt(ext)
		}
	}
	if !isAllowedMediaMime(mimeType) {
		return "", nil, fmt.Errorf("unsupported content type: %s", mimeType)
	}

	if err := os.MkdirAll(u.baseDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("ensure uploads dir: %w", err)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return "", nil, fmt.Errorf("open uploaded file: %w", err)
	}
	defer func() { _ = src.Close() }()

	ext := pickExtension(mimeType, fileHeader.Filename)
	filename := fmt.Sprintf("%s%s", randomHex(16), ext)
	dstPath := filepath.Join(u.baseDir, filename)

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", nil, fmt.Errorf("create upload file: %w", err)
	}
	defer func() { _ = dst.Close() }()

	limited := io.LimitReader(src, maxBytes)
	if _, err := io.Copy(dst, limited); err != nil {
		_ = os.Remove(dstPath)
		return "", nil, fmt.Errorf("copy upload: %w", err)
	}

	cleanup := func() error {
		err := os.Remove(dstPath)
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return dstPath, cleanup, nil
}

func isAllowedMediaMime(mimeType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	_, ok := allowedMediaMimes[mt]
	return ok
}

// mimeByMediaExt covers media extensions the platform mime table may miss.
func mimeByMediaExt(ext string) string {
	switch ext {
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".mkv":
		return "video/x-matroska"
	case ".webm":
		return "video/webm"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	default:
		return ""
	}
}

func pickExtension(mimeType, original string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if ext, ok := allowedMediaMimes[mt]; ok {
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
