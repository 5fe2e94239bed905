package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const body = "a,b\n1,2\n"

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestOpen_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		io.WriteString(w, body)
	}))
	defer srv.Close()

	rc, err := Open(context.Background(), srv.Client(), srv.URL+"/customers.csv")
	require.NoError(t, err)
	assert.Equal(t, body, readAll(t, rc))
}

func TestOpen_HTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := Open(context.Background(), srv.Client(), srv.URL)
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestOpen_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := Open(context.Background(), nil, url)
	assert.Error(t, err)
}

func TestOpen_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	tests := []struct {
		name   string
		source string
	}{
		{"Plain path", path},
		{"File URL", "file://" + filepath.ToSlash(path)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc, err := Open(context.Background(), nil, tt.source)
			require.NoError(t, err)
			assert.Equal(t, body, readAll(t, rc))
		})
	}
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open(context.Background(), nil, filepath.Join(t.TempDir(), "nope.csv"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
