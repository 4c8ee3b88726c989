package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
)

// allowedKinds — типы файлов, допустимые в результатах работ:
// изображения, архивы, документы, аудио и видео.
var allowedKinds = map[string]struct{}{
	"image":       {},
	"archive":     {},
	"document":    {},
	"audio":       {},
	"video":       {},
	"application": {},
}

// FileStorage отвечает за файловое хранилище результатов работ.
// Тип файла проверяется по сигнатуре, а не по расширению.
type FileStorage struct {
	rootPath       string
	maxUploadBytes int64
}

// NewFileStorage создаёт файловое хранилище.
func NewFileStorage(rootPath string, maxUploadMB int64) (*FileStorage, error) {
	if err := os.MkdirAll(rootPath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: не удалось создать каталог %s: %w", rootPath, err)
	}

	return &FileStorage{
		rootPath:       rootPath,
		maxUploadBytes: maxUploadMB * 1024 * 1024,
	}, nil
}

// Save сохраняет файл и возвращает относительный путь.
func (s *FileStorage) Save(ctx context.Context, orderID uuid.UUID, originalName string, r io.Reader) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	head := make([]byte, 262)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", 0, fmt.Errorf("storage: ошибка чтения файла: %w", err)
	}
	head = head[:n]

	if err := checkFileKind(head); err != nil {
		return "", 0, err
	}

	safeName := sanitizeFilename(originalName)
	fileName := fmt.Sprintf("%s_%d%s", orderID.String(), time.Now().UnixNano(), filepath.Ext(safeName))

	orderDir := filepath.Join(s.rootPath, orderID.String())
	if err := os.MkdirAll(orderDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("storage: не удалось создать каталог заказа: %w", err)
	}

	targetPath := filepath.Join(orderDir, fileName)
	tempPath := targetPath + ".tmp"

	f, err := os.Create(tempPath)
	if err != nil {
		return "", 0, fmt.Errorf("storage: не удалось создать файл: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(head); err != nil {
		_ = os.Remove(tempPath)
		return "", 0, fmt.Errorf("storage: ошибка записи файла: %w", err)
	}

	limitedReader := io.LimitedReader{R: r, N: s.maxUploadBytes + 1}
	written, err := io.Copy(f, &limitedReader)
	if err != nil {
		_ = os.Remove(tempPath)
		return "", 0, fmt.Errorf("storage: ошибка записи файла: %w", err)
	}
	written += int64(len(head))

	if written > s.maxUploadBytes {
		_ = os.Remove(tempPath)
		return "", 0, fmt.Errorf("storage: размер файла превышает лимит %d байт", s.maxUploadBytes)
	}

	if err := f.Close(); err != nil {
		return "", 0, fmt.Errorf("storage: ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tempPath, targetPath); err != nil {
		return "", 0, fmt.Errorf("storage: не удалось переименовать файл: %w", err)
	}

	relative := filepath.Join(orderID.String(), fileName)
	return relative, written, nil
}

// Delete удаляет файл из хранилища.
func (s *FileStorage) Delete(ctx context.Context, relativePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target := filepath.Join(s.rootPath, relativePath)
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: не удалось удалить файл: %w", err)
	}
	return nil
}

// checkFileKind проверяет сигнатуру файла.
func checkFileKind(head []byte) error {
	kind, err := filetype.Match(head)
	if err != nil {
		return fmt.Errorf("storage: не удалось определить тип файла: %w", err)
	}
	if kind == types.Unknown {
		// Текстовые форматы не имеют сигнатуры, пропускаем
		return nil
	}

	group := kind.MIME.Type
	if _, ok := allowedKinds[group]; !ok {
		return fmt.Errorf("storage: тип файла %s не поддерживается", kind.MIME.Value)
	}
	return nil
}

// sanitizeFilename удаляет потенциально опасные символы.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "..", "")
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	if name == "" {
		name = "file"
	}
	return name
}
