package upload

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransferPut_Success(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 4096)
	var gotBody []byte
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := NewTransfer(srv.Client(), nil)
	var lastPercent int
	err := tr.Put(context.Background(), srv.URL, "video/mp4", bytes.NewReader(payload), int64(len(payload)), func(p int) {
		require.GreaterOrEqual(t, p, lastPercent)
		lastPercent = p
	})
	require.NoError(t, err)
	require.Equal(t, payload, gotBody)
	require.Equal(t, "video/mp4", gotContentType)
	require.Equal(t, 100, lastPercent)
}

func TestTransferPut_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := NewTransfer(srv.Client(), nil)
	err := tr.Put(context.Background(), srv.URL, "video/mp4", bytes.NewReader([]byte("data")), 4, nil)
	require.ErrorContains(t, err, "upload status 500")
}

func TestTransferPut_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	tr := NewTransfer(nil, nil)
	err := tr.Put(context.Background(), srv.URL, "video/mp4", bytes.NewReader([]byte("data")), 4, nil)
	require.Error(t, err)
}

func TestTransferPut_NilProgress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusCreated) // any 2xx counts
	}))
	defer srv.Close()

	tr := NewTransfer(srv.Client(), nil)
	err := tr.Put(context.Background(), srv.URL, "image/jpeg", bytes.NewReader([]byte("jpeg")), 4, nil)
	require.NoError(t, err)
}

func TestProgressReader(t *testing.T) {
	data := bytes.Repeat([]byte("a"), 1000)
	var reports []int
	pr := &progressReader{
		r:      bytes.NewReader(data),
		total:  1000,
		report: func(p int) { reports = append(reports, p) },
	}

	buf := make([]byte, 250)
	for {
		if _, err := pr.Read(buf); err == io.EOF {
			break
		}
	}

	require.Equal(t, []int{25, 50, 75, 100}, reports)
}
