package pkg

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidImage 文案与表单错误保持一致
var ErrInvalidImage = errors.New("Загрузите правильное изображение. Файл, который вы загрузили, поврежден или не является изображением.")

const (
	DefaultMaxUploadBytes = 5 << 20
	postsUploadDir        = "posts"
)

// MediaStore 保存上传的图片，返回相对 Root 的引用
type MediaStore struct {
	Root     string
	MaxBytes int64
}

func NewMediaStore(root string, maxBytes int64) *MediaStore {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &MediaStore{Root: root, MaxBytes: maxBytes}
}

// SavePostImage 校验是可解码的图片后写入 posts/<uuid>.<format>
func (m *MediaStore) SavePostImage(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, m.MaxBytes+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > m.MaxBytes {
		return "", fmt.Errorf("image exceeds %d bytes", m.MaxBytes)
	}
	if _, _, err = image.Decode(bytes.NewReader(data)); err != nil {
		return "", ErrInvalidImage
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", ErrInvalidImage
	}

	dir := filepath.Join(m.Root, postsUploadDir)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := uuid.NewString() + "." + format
	if err = os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", err
	}
	return postsUploadDir + "/" + name, nil
}

// Remove 删除 SavePostImage 写入的文件，文件不存在视为成功
func (m *MediaStore) Remove(ref string) error {
	path := filepath.Join(m.Root, filepath.FromSlash(ref))
	rel, err := filepath.Rel(m.Root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("image %q is outside the media root", ref)
	}
	if err = os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
