package utils

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// smallGIF is a valid 1x1 GIF.
var smallGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00,
	0x01, 0x00, 0x00, 0x00, 0x00, 0x21, 0xf9, 0x04,
	0x01, 0x0a, 0x00, 0x01, 0x00, 0x2c, 0x00, 0x00,
	0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x4c, 0x01, 0x00, 0x3b,
}

func upload(t *testing.T, filename string, content []byte) (multipart.File, *multipart.FileHeader) {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/", body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	require.NoError(t, r.ParseMultipartForm(1<<20))

	file, header, err := r.FormFile("image")
	require.NoError(t, err)
	t.Cleanup(func() { file.Close() })
	return file, header
}

func TestImageStoreSave(t *testing.T) {
	store := NewImageStore(t.TempDir(), "/media")

	file, header := upload(t, "small.txt", smallGIF)
	name, err := store.Save(file, header)
	require.NoError(t, err)
	assert.Equal(t, ".gif", filepath.Ext(name))
	assert.Equal(t, "posts", filepath.Dir(filepath.FromSlash(name)))

	stored, err := os.ReadFile(filepath.Join(store.Root, filepath.FromSlash(name)))
	require.NoError(t, err)
	assert.Equal(t, smallGIF, stored)
	assert.Equal(t, "/media/"+name, store.PublicURL(name))

	require.NoError(t, store.Delete(name))
	require.NoError(t, store.Delete(name))
}

func TestImageStoreRejectsNonImages(t *testing.T) {
	store := NewImageStore(t.TempDir(), "/media/")

	file, header := upload(t, "fake.gif", []byte("definitely not an image"))
	_, err := store.Save(file, header)
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestPublicURLWithoutImage(t *testing.T) {
	assert.Empty(t, NewImageStore("uploads", "/media/").PublicURL(""))
}
