// Package storage はアップロードファイルの保存レイヤーを提供します。
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
)

// Local はローカルファイルシステムへの保存を行います。
// 保存先は <baseDir>/<maternalID>/<uuid><ext> です。
type Local struct {
	baseDir string
}

// NewLocal は Local を作成します。
func NewLocal(baseDir string) *Local {
	return &Local{baseDir: baseDir}
}

// Save はファイル内容を保存し、ファイルIDと保存パスを返します。
// ext は "." を含む拡張子（例: ".pdf"）です。
func (l *Local) Save(maternalID int64, ext string, data []byte) (fileID string, path string, err error) {
	dir := filepath.Join(l.baseDir, strconv.FormatInt(maternalID, 10))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create upload dir: %w", err)
	}

	fileID = uuid.NewString()
	path = filepath.Join(dir, fileID+ext)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", "", fmt.Errorf("failed to write file: %w", err)
	}
	return fileID, path, nil
}

// Remove は保存済みファイルを削除します。存在しない場合もエラーにしません。
func (l *Local) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
