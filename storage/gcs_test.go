package storage_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	gcs "cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/aluiziolira/go-scrape-books-gce/storage"
)

type countingFactory struct {
	endpoint string
	calls    int
	err      error
}

func (f *countingFactory) NewClient(ctx context.Context) (*gcs.Client, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return gcs.NewClient(ctx, option.WithEndpoint(f.endpoint), option.WithoutAuthentication())
}

func newPublisher(t *testing.T, handler http.Handler) (*storage.GCSPublisher, *countingFactory) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	factory := &countingFactory{endpoint: server.URL}
	publisher, err := storage.NewGCSPublisher(factory, storage.GCSConfig{
		Bucket: "books-bucket",
		Object: "runs/today/results.json",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = publisher.Close() })
	return publisher, factory
}

func TestGCSPublisher_Publish(t *testing.T) {
	document := []byte(`[{"book_title": "A Light in the Attic"}]`)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/books-bucket/o")
		assert.Equal(t, "runs/today/results.json", r.URL.Query().Get("name"))
		assert.Equal(t, "multipart", r.URL.Query().Get("uploadType"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), string(document))
		assert.Contains(t, string(body), `"contentType":"application/json"`)

		fmt.Fprintln(w, `{"bucket": "books-bucket", "name": "runs/today/results.json"}`)
	})

	publisher, factory := newPublisher(t, handler)

	uri, err := publisher.Publish(context.Background(), document)
	require.NoError(t, err)
	assert.Equal(t, "gs://books-bucket/runs/today/results.json", uri)

	_, err = publisher.Publish(context.Background(), document)
	require.NoError(t, err)
	assert.Equal(t, 1, factory.calls, "client is created once and reused")
}

func TestGCSPublisher_Publish_ServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	publisher, _ := newPublisher(t, handler)

	_, err := publisher.Publish(context.Background(), []byte("[]"))
	assert.Error(t, err)
}

func TestGCSPublisher_Publish_ClientError(t *testing.T) {
	factory := &countingFactory{err: errors.New("no credentials")}
	publisher, err := storage.NewGCSPublisher(factory, storage.GCSConfig{
		Bucket: "books-bucket",
		Object: "results.json",
	}, nil)
	require.NoError(t, err)

	_, err = publisher.Publish(context.Background(), []byte("[]"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "no credentials")
}

func TestNewGCSPublisher_Validation(t *testing.T) {
	factory := &countingFactory{}

	_, err := storage.NewGCSPublisher(nil, storage.GCSConfig{Bucket: "b", Object: "o"}, nil)
	assert.Error(t, err)

	_, err = storage.NewGCSPublisher(factory, storage.GCSConfig{Object: "o"}, nil)
	assert.Error(t, err)

	_, err = storage.NewGCSPublisher(factory, storage.GCSConfig{Bucket: "b", Object: " "}, nil)
	assert.Error(t, err)
}
