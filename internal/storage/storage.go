package storage

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"strings"
)

// ObjectStorage defines the object operations shared by the backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// Avatars stores user avatar images in object storage. Keys are scoped
// per user; uploading never overwrites an existing object, so callers
// delete the previous key after recording the new one.
type Avatars struct {
	backend ObjectStorage
}

func NewAvatars(backend ObjectStorage) *Avatars {
	return &Avatars{backend: backend}
}

// EnsureBucket ensures the avatar bucket exists.
func (a *Avatars) EnsureBucket(ctx context.Context) error {
	return a.backend.EnsureBucket(ctx)
}

// Upload stores an avatar image and returns its object key.
func (a *Avatars) Upload(ctx context.Context, userID int, filename, contentType string, data []byte) (string, error) {
	key := avatarKey(userID, filename)
	if err := a.backend.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return "", err
	}
	return key, nil
}

// Open returns a reader for a stored avatar.
func (a *Avatars) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return a.backend.Get(ctx, key)
}

// Remove deletes a stored avatar object.
func (a *Avatars) Remove(ctx context.Context, key string) error {
	return a.backend.Delete(ctx, key)
}

func avatarKey(userID int, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return fmt.Sprintf("avatars/%d/%s%s", userID, hex.EncodeToString(buf[:]), ext)
}
