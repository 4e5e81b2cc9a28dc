package core

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	client, err := NewClient(ClientOptions{})
	require.NoError(t, err)
	require.Equal(t, DefaultBaseUrl, client.BaseUrl.String())

	resolved, err := client.Resolve("data/regions/root.json")
	require.NoError(t, err)
	require.Equal(t, "https://www.pilipinaselectionresults2016.com/data/regions/root.json", resolved)

	resolved, err = client.Resolve("/data/regions/REGION_III.json")
	require.NoError(t, err)
	require.Equal(t, "https://www.pilipinaselectionresults2016.com/data/regions/REGION_III.json", resolved)
}

func TestNewClientRejectsRelativeBase(t *testing.T) {
	_, err := NewClient(ClientOptions{BaseUrl: "data/regions"})
	require.Error(t, err)
}

func TestGet(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/data/regions/root.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json")
		w.Write([]byte(`{"name": "PHILIPPINES", "subRegions": {}}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := NewClient(ClientOptions{BaseUrl: server.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	body, err := client.Get(ctx, "data/regions/root.json")
	require.NoError(t, err)
	require.Equal(t, `{"name": "PHILIPPINES", "subRegions": {}}`, string(body))

	_, err = client.Get(ctx, "/data/missing.json")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr), "expected a status error, got %v", err)
	require.Equal(t, http.StatusNotFound, statusErr.Status)
}
