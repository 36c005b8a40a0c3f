package network_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JoeyJohnson82/ScCrawler/htmldom/network"
)

func TestHarvester_RecordsExchanges(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>hi</body></html>"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := network.NewClient(network.NewBrowserClientConfig())
	harvester := network.NewHarvester(client.Transport, zap.NewNop(), true)
	client.Transport = harvester

	resp, err := client.Get(srv.URL + "/page?q=1")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	resp, err = client.Get(srv.URL + "/missing")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	har := harvester.GenerateHAR()
	require.NotNil(t, har)
	require.Len(t, har.Log.Entries, 2)

	first := har.Log.Entries[0]
	assert.Equal(t, http.MethodGet, first.Request.Method)
	assert.Equal(t, srv.URL+"/page?q=1", first.Request.URL)
	assert.Equal(t, http.StatusOK, first.Response.Status)
	assert.Contains(t, first.Response.Content.Text, "hi")

	assert.Equal(t, http.StatusNotFound, har.Log.Entries[1].Response.Status)
}

func TestHarvester_WaitNetworkIdle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client := network.NewClient(network.NewBrowserClientConfig())
	harvester := network.NewHarvester(client.Transport, zap.NewNop(), false)
	client.Transport = harvester

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	require.NoError(t, harvester.WaitNetworkIdle(context.Background(), 50*time.Millisecond))

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, harvester.WaitNetworkIdle(canceled, time.Minute), context.Canceled)
}
