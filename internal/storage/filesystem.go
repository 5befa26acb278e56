package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// FilesystemStore はローカルディレクトリにファイルを保存するDocumentStore。
type FilesystemStore struct {
	dir string
}

// NewFilesystemStore は保存先ディレクトリを作成してFilesystemStoreを返す。
func NewFilesystemStore(dir string) (*FilesystemStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &FilesystemStore{dir: dir}, nil
}

// Save はファイルを書き込む。書き込み途中で失敗した場合は部分ファイルを削除する。
func (s *FilesystemStore) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := NewKey(name)
	fileName, err := fileNameFromKey(key)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, fileName)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", fmt.Errorf("failed to create document file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write document file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close document file: %w", err)
	}

	return key, nil
}

// Open はファイルを読み取り用に開く。
func (s *FilesystemStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("failed to open document file: %w", err)
	}
	return f, nil
}

// Delete はファイルを削除する。
func (s *FilesystemStore) Delete(_ context.Context, key string) error {
	path, err := s.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotExist
		}
		return fmt.Errorf("failed to remove document file: %w", err)
	}
	return nil
}

func (s *FilesystemStore) pathFor(key string) (string, error) {
	name, err := fileNameFromKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name), nil
}

var _ DocumentStore = (*FilesystemStore)(nil)
