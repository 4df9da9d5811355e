package api

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const maxAvatarBytes = 5 << 20 // 5 MB

// storeAvatar saves an uploaded assistant avatar under the file base
// and returns the public /uploads path.
func (h *Handler) storeAvatar(c *gin.Context, userID int64, file *multipart.FileHeader) (string, error) {
	if h.fileBase == "" {
		return "", errors.New("file storage not configured")
	}
	if file.Size > maxAvatarBytes {
		return "", errors.New("image too large")
	}

	f, err := file.Open()
	if err != nil {
		return "", errors.New("open uploaded file failed")
	}
	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	_ = f.Close()
	contentType := http.DetectContentType(buf[:n])
	if !strings.HasPrefix(contentType, "image/") {
		return "", errors.New("unsupported image type")
	}

	filename := filepath.Base(file.Filename)
	destDir, destPath, finalName := h.uniqueAvatarPath(userID, filename)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", errors.New("create directory failed")
	}
	if err := c.SaveUploadedFile(file, destPath); err != nil {
		return "", errors.New("save file failed")
	}
	return fmt.Sprintf("/uploads/avatars/%d/%s", userID, finalName), nil
}

func (h *Handler) avatarPath(userID int64, filename string) (string, string) {
	destDir := filepath.Join(h.fileBase, "avatars", strconv.FormatInt(userID, 10))
	destPath := filepath.Join(destDir, filename)
	return destDir, destPath
}

func (h *Handler) uniqueAvatarPath(userID int64, filename string) (string, string, string) {
	destDir, destPath := h.avatarPath(userID, filename)
	if _, err := os.Stat(destPath); os.IsNotExist(err) {
		return destDir, destPath, filename
	}
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	for idx := 1; idx <= 1000; idx++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, idx, ext)
		dir, path := h.avatarPath(userID, candidate)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return dir, path, candidate
		}
	}
	stamped := fmt.Sprintf("%s-%d%s", base, time.Now().UnixNano(), ext)
	dir, path := h.avatarPath(userID, stamped)
	return dir, path, stamped
}
