package media

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tinyGIF is a 1x1 transparent GIF.
var tinyGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

func TestDetectAcceptsImages(t *testing.T) {
	img, err := Detect(bytes.NewReader(tinyGIF))
	require.NoError(t, err)
	assert.Equal(t, "image/gif", img.ContentType)
	assert.Equal(t, ".gif", img.Ext)

	replayed, err := io.ReadAll(img.Body)
	require.NoError(t, err)
	assert.Equal(t, tinyGIF, replayed)
}

func TestDetectRejectsOtherFiles(t *testing.T) {
	_, err := Detect(strings.NewReader("import tesla\nprint(tesla.coil())\n"))
	assert.ErrorIs(t, err, ErrNotImage)

	_, err = Detect(bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrNotImage)
}

func TestDiskSaveAndDelete(t *testing.T) {
	dir := t.TempDir()
	d := NewDisk(dir, "/media")
	ctx := context.Background()

	img, err := Detect(bytes.NewReader(tinyGIF))
	require.NoError(t, err)

	key, err := d.Save(ctx, img)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "posts/"))
	assert.True(t, strings.HasSuffix(key, ".gif"))
	assert.Equal(t, "/media/"+key, d.URL(key))

	stored, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
	require.NoError(t, err)
	assert.Equal(t, tinyGIF, stored)

	require.NoError(t, d.Delete(ctx, key))
	_, err = os.Stat(filepath.Join(dir, filepath.FromSlash(key)))
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, d.Delete(ctx, key), "deleting twice is harmless")
	assert.Equal(t, "", d.URL(""))
}

func TestDiskHandlerServesFilesNotListings(t *testing.T) {
	d := NewDisk(t.TempDir(), "/media/")
	img, err := Detect(bytes.NewReader(tinyGIF))
	require.NoError(t, err)
	key, err := d.Save(context.Background(), img)
	require.NoError(t, err)

	h := d.Handler()
	get := func(p string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, p, nil))
		return rec
	}

	rec := get("/" + key)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tinyGIF, rec.Body.Bytes())

	for _, p := range []string{"/", "/posts/", "/posts"} {
		rec := get(p)
		assert.Equal(t, http.StatusNotFound, rec.Code, p)
		assert.NotContains(t, rec.Body.String(), path.Base(key), p)
	}
}
