// Пакет filestore — файлы ассетов каталога на диске.
// Загрузка сначала попадает в staging-директорию, и только после решения
// о коммите транзакции переносится в каталог ассетов.
package filestore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/catalog-module/internal/domain/model"
)

// maxExtLen — ограничение длины расширения в имени файла.
const maxExtLen = 16

// FileStore — управление файлами ассетов и staging-загрузками.
type FileStore struct {
	// assetDir — каталог опубликованных ассетов (CM_ASSET_DIR)
	assetDir string
	// stagingDir — каталог временных загрузок (CM_STAGING_DIR)
	stagingDir string
}

// New создаёт FileStore. Обе директории создаются, если их нет.
func New(assetDir, stagingDir string) (*FileStore, error) {
	for _, dir := range []string{assetDir, stagingDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
		}
	}
	return &FileStore{assetDir: assetDir, stagingDir: stagingDir}, nil
}

// AssetDir возвращает каталог ассетов.
func (fs *FileStore) AssetDir() string {
	return fs.assetDir
}

// Stage записывает поток загрузки во временный файл staging-директории
// под новым UUID. Исходное имя сохраняется только ради расширения.
//
// Паттерн: temp файл → запись → fsync → atomic rename.
// При ошибке temp файл удаляется.
func (fs *FileStore) Stage(reader io.Reader, originalName string) (*model.StagedAsset, error) {
	identity := uuid.New().String()
	fullPath := filepath.Join(fs.stagingDir, identity+sanitizeExt(filepath.Ext(originalName)))
	tmpPath := fullPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := io.Copy(f, reader); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &model.StagedAsset{
		SourcePath:   fullPath,
		OriginalName: originalName,
		Identity:     identity,
	}, nil
}

// TargetPath вычисляет детерминированный путь ассета: <assetDir>/<identity><ext>.
func (fs *FileStore) TargetPath(asset *model.StagedAsset) string {
	return filepath.Join(fs.assetDir, asset.Identity+sanitizeExt(asset.Ext()))
}

// Place переносит файл src в dst. Если rename невозможен между разными
// файловыми системами, файл копируется, а src удаляется.
func (fs *FileStore) Place(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return fmt.Errorf("ошибка переноса %s → %s: %w", src, dst, err)
	}

	if err := copyFile(src, dst); err != nil {
		os.Remove(dst)
		return err
	}
	if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления исходного файла %s: %w", src, err)
	}
	return nil
}

// Delete удаляет файл. Отсутствие файла ошибкой не считается.
func (fs *FileStore) Delete(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s: %w", path, err)
	}
	return nil
}

// Exists проверяет существование файла на диске.
func (fs *FileStore) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// SweepStaging удаляет брошенные загрузки старше olderThan.
// Возвращает количество удалённых файлов.
func (fs *FileStore) SweepStaging(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(fs.stagingDir)
	if err != nil {
		return 0, fmt.Errorf("ошибка чтения директории %s: %w", fs.stagingDir, err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(fs.stagingDir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// copyFile копирует содержимое src в новый файл dst с fsync.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("ошибка открытия %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return fmt.Errorf("ошибка создания %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("ошибка копирования в %s: %w", dst, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("ошибка fsync: %w", err)
	}
	return out.Close()
}

// sanitizeExt оставляет в расширении только точку, буквы и цифры.
func sanitizeExt(ext string) string {
	var result strings.Builder
	for _, r := range ext {
		if (r == '.' && result.Len() == 0) ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			result.WriteRune(r)
		}
	}
	if result.Len() <= 1 || result.Len() > maxExtLen {
		return ""
	}
	return strings.ToLower(result.String())
}
