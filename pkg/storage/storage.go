// Package storage 保存导出文件。支持本地目录和 MinIO 两种后端。
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound 表示对象不存在。
var ErrNotFound = errors.New("artifact not found")

// ArtifactStore 是导出文件的存储接口。key 使用 "/" 分隔。
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)
	// PresignedURL 返回可直接下载的临时地址；不支持时返回空串。
	PresignedURL(ctx context.Context, key, filename string) (string, error)
	DeletePrefix(ctx context.Context, prefix string) error
}
