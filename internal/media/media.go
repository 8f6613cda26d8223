// Package media stores uploaded post images.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var ErrNotImage = errors.New("file is not a supported image")

// sniffLen is how many leading bytes are inspected to identify a file.
const sniffLen = 3072

var imageTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// Image is an upload that passed content sniffing.
type Image struct {
	ContentType string
	Ext         string
	Body        io.Reader
}

// Detect identifies r by its content, not by file name. Only common raster
// image formats are accepted. The returned Body replays the sniffed bytes.
func Detect(r io.Reader) (Image, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Image{}, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return Image{}, ErrNotImage
	}

	mt := mimetype.Detect(head)
	for _, t := range imageTypes {
		if mt.Is(t) {
			return Image{
				ContentType: t,
				Ext:         mt.Extension(),
				Body:        io.MultiReader(bytes.NewReader(head), r),
			}, nil
		}
	}
	return Image{}, fmt.Errorf("%w: detected %s", ErrNotImage, mt.String())
}

// Store persists images under generated keys.
type Store interface {
	Save(ctx context.Context, img Image) (key string, err error)
	URL(key string) string
	Delete(ctx context.Context, key string) error
}

// NewKey names a new upload; keys are unique and grouped under posts/.
func NewKey(ext string) string {
	return path.Join("posts", uuid.NewString()+ext)
}

// Disk keeps images on the local filesystem and serves them itself.
type Disk struct {
	dir     string
	baseURL string
}

var _ Store = (*Disk)(nil)

func NewDisk(dir, baseURL string) *Disk {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Disk{dir: dir, baseURL: baseURL}
}

func (d *Disk) Save(ctx context.Context, img Image) (string, error) {
	key := NewKey(img.Ext)
	full := filepath.Join(d.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("media dir: %w", err)
	}
	f, err := os.Create(full)
	if err != nil {
		return "", fmt.Errorf("media create: %w", err)
	}
	if _, err := io.Copy(f, img.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(full)
		return "", fmt.Errorf("media write: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("media close: %w", err)
	}
	return key, nil
}

func (d *Disk) URL(key string) string {
	if key == "" {
		return ""
	}
	return d.baseURL + key
}

func (d *Disk) Delete(_ context.Context, key string) error {
	if key == "" {
		return nil
	}
	err := os.Remove(filepath.Join(d.dir, filepath.FromSlash(key)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("media delete: %w", err)
	}
	return nil
}

// Handler serves stored files; mount it under the base URL with StripPrefix.
// Directories are reported as not found instead of being listed.
func (d *Disk) Handler() http.Handler {
	return http.FileServer(filesOnly{http.Dir(d.dir)})
}

type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	st, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if st.IsDir() {
		_ = file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}
