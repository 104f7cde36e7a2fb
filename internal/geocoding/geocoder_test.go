package geocoding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupGeocoder(t *testing.T, handler http.HandlerFunc) *Geocoder {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	g := NewGeocoder(logrus.New(), "", "AR")
	g.baseURL = server.URL
	g.delay = 0
	return g
}

func TestLocate(t *testing.T) {
	var calls int32
	g := setupGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "ar", r.URL.Query().Get("countrycodes"))
		assert.Equal(t, "Av. Corrientes 1234, Buenos Aires", r.URL.Query().Get("q"))
		w.Write([]byte(`[{"lat":"-34.6037","lon":"-58.3816"}]`))
	})

	lat, lon, err := g.Locate(context.Background(), "Av. Corrientes 1234, Buenos Aires")
	require.NoError(t, err)
	assert.InDelta(t, -34.6037, lat, 1e-9)
	assert.InDelta(t, -58.3816, lon, 1e-9)

	// Second lookup is served from cache, ignoring case and spacing
	_, _, err = g.Locate(context.Background(), "av. corrientes  1234, buenos aires")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestLocateNoResults(t *testing.T) {
	g := setupGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	_, _, err := g.Locate(context.Background(), "Nowhere 0")
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestLocateErrors(t *testing.T) {
	g := setupGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, _, err := g.Locate(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyAddress)

	_, _, err = g.Locate(context.Background(), "Calle 1")
	assert.Error(t, err)
}
