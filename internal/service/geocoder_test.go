package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridequery/internal/config"
	"ridequery/internal/model"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func newTestNominatim(t *testing.T, handler http.HandlerFunc) *NominatimProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewNominatimProvider(config.GeocoderConfig{
		BaseURL:        server.URL,
		UserAgent:      "ridequery-test",
		CountryCodes:   "de",
		RequestsPerSec: 1000,
	})
}

func TestNominatimProvider_LookupName(t *testing.T) {
	provider := newTestNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "ridequery-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "de", r.URL.Query().Get("countrycodes"))

		switch r.URL.Query().Get("q") {
		case "Leipzig":
			_, _ = w.Write([]byte(`[{"display_name":"Leipzig, Sachsen, Deutschland","lat":"51.3406","lon":"12.3747","address":{"city":"Leipzig"}}]`))
		case "Cospudener See":
			_, _ = w.Write([]byte(`[{"display_name":"Cospudener See","lat":"51.27","lon":"12.33","address":{}}]`))
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	})

	point, err := provider.LookupName(context.Background(), "Leipzig")
	require.NoError(t, err)
	assert.Equal(t, &GeoPoint{Lat: 51.3406, Lng: 12.3747, CityLabel: "Leipzig"}, point)

	point, err = provider.LookupName(context.Background(), "Cospudener See")
	require.NoError(t, err)
	assert.Equal(t, "Cospudener See", point.CityLabel)

	point, err = provider.LookupName(context.Background(), "Atlantis")
	require.NoError(t, err)
	assert.Nil(t, point)
}

func TestNominatimProvider_LookupCoordinates(t *testing.T) {
	provider := newTestNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		if r.URL.Query().Get("lat") == "0.000000" {
			_, _ = w.Write([]byte(`{"error":"Unable to geocode"}`))
			return
		}
		_, _ = w.Write([]byte(`{"display_name":"Markkleeberg","lat":"51.28","lon":"12.37","address":{"town":"Markkleeberg"}}`))
	})

	place, err := provider.LookupCoordinates(context.Background(), 51.28, 12.37)
	require.NoError(t, err)
	assert.Equal(t, &GeoPlace{CityLabel: "Markkleeberg"}, place)

	place, err = provider.LookupCoordinates(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Nil(t, place)
}

func TestNominatimProvider_UpstreamError(t *testing.T) {
	provider := newTestNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := provider.LookupName(context.Background(), "Leipzig")
	assert.Error(t, err)
}

type countingProvider struct {
	calls atomic.Int32
	point *GeoPoint
	place *GeoPlace
	err   error
}

func (p *countingProvider) LookupName(_ context.Context, _ string) (*GeoPoint, error) {
	p.calls.Add(1)
	return p.point, p.err
}

func (p *countingProvider) LookupCoordinates(_ context.Context, _, _ float64) (*GeoPlace, error) {
	p.calls.Add(1)
	return p.place, p.err
}

func TestGeocodingService_CachesMatches(t *testing.T) {
	mr, rdb := newTestRedis(t)
	provider := &countingProvider{point: &GeoPoint{Lat: 51.34, Lng: 12.37, CityLabel: "Leipzig"}}
	svc := NewGeocodingService(provider, rdb, time.Hour, time.Minute, nil)

	first := svc.GeocodeByName(context.Background(), "Leipzig")
	second := svc.GeocodeByName(context.Background(), "  leipzig ")

	assert.Equal(t, provider.point, first)
	assert.Equal(t, provider.point, second)
	assert.Equal(t, int32(1), provider.calls.Load())

	ttl := mr.TTL("ridequery:geocode:name:leipzig")
	assert.Equal(t, time.Hour, ttl)
}

func TestGeocodingService_CachesMisses(t *testing.T) {
	mr, rdb := newTestRedis(t)
	provider := &countingProvider{}
	svc := NewGeocodingService(provider, rdb, time.Hour, time.Minute, nil)

	assert.Nil(t, svc.GeocodeByName(context.Background(), "Atlantis"))
	assert.Nil(t, svc.GeocodeByName(context.Background(), "Atlantis"))
	assert.Equal(t, int32(1), provider.calls.Load())

	value, err := mr.Get("ridequery:geocode:name:atlantis")
	require.NoError(t, err)
	assert.Equal(t, "null", value)
	assert.Equal(t, time.Minute, mr.TTL("ridequery:geocode:name:atlantis"))
}

func TestGeocodingService_ErrorsAreNotCached(t *testing.T) {
	mr, rdb := newTestRedis(t)
	provider := &countingProvider{err: errors.New("timeout")}
	svc := NewGeocodingService(provider, rdb, time.Hour, time.Minute, nil)

	assert.Nil(t, svc.GeocodeByName(context.Background(), "Leipzig"))
	assert.Nil(t, svc.GeocodeByName(context.Background(), "Leipzig"))
	assert.Equal(t, int32(2), provider.calls.Load())
	assert.False(t, mr.Exists("ridequery:geocode:name:leipzig"))
}

func TestGeocodingService_ReverseAndNoCache(t *testing.T) {
	provider := &countingProvider{place: &GeoPlace{CityLabel: "Markkleeberg"}}
	svc := NewGeocodingService(provider, nil, time.Hour, time.Minute, nil)

	assert.Equal(t, "Markkleeberg", svc.GeocodeByCoordinates(context.Background(), 51.2801, 12.3702).CityLabel)
	assert.Equal(t, "Markkleeberg", svc.GeocodeByCoordinates(context.Background(), 51.2801, 12.3702).CityLabel)
	assert.Equal(t, int32(2), provider.calls.Load(), "without redis every lookup reaches the provider")

	assert.Nil(t, svc.GeocodeByName(context.Background(), "   "))
}

func TestGeocodingService_CacheUnavailable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	t.Cleanup(func() { _ = rdb.Close() })

	provider := &countingProvider{point: &GeoPoint{Lat: 1, Lng: 2, CityLabel: "Somewhere"}}
	svc := NewGeocodingService(provider, rdb, time.Hour, time.Minute, nil)

	assert.Equal(t, provider.point, svc.GeocodeByName(context.Background(), "Somewhere"))
}

// gatedProvider blocks name lookups until release is closed or the lookup context ends
type gatedProvider struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	once    sync.Once
	point   *GeoPoint
}

func (p *gatedProvider) LookupName(ctx context.Context, _ string) (*GeoPoint, error) {
	p.calls.Add(1)
	p.once.Do(func() { close(p.started) })
	select {
	case <-p.release:
		return p.point, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *gatedProvider) LookupCoordinates(context.Context, float64, float64) (*GeoPlace, error) {
	return nil, nil
}

func TestGeocodingService_CancelledCallerDoesNotFailOthers(t *testing.T) {
	mr, rdb := newTestRedis(t)
	provider := &gatedProvider{
		started: make(chan struct{}),
		release: make(chan struct{}),
		point:   &GeoPoint{Lat: 51.34, Lng: 12.37, CityLabel: "Leipzig"},
	}
	svc := NewGeocodingService(provider, rdb, time.Hour, time.Minute, nil)

	impatient, cancel := context.WithCancel(context.Background())
	impatientResult := make(chan *GeoPoint, 1)
	go func() { impatientResult <- svc.GeocodeByName(impatient, "Leipzig") }()
	<-provider.started

	patientResult := make(chan *GeoPoint, 1)
	go func() { patientResult <- svc.GeocodeByName(context.Background(), "Leipzig") }()
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case got := <-impatientResult:
		assert.Nil(t, got)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled lookup kept waiting on the shared fetch")
	}

	close(provider.release)
	select {
	case got := <-patientResult:
		assert.Equal(t, provider.point, got)
	case <-time.After(2 * time.Second):
		t.Fatal("lookup never finished")
	}

	assert.Equal(t, int32(1), provider.calls.Load())
	assert.True(t, mr.Exists("ridequery:geocode:name:leipzig"), "the shared fetch outlives the cancelled caller and is cached")
}

type fakeCities struct {
	byName  map[string]model.City
	nearest *model.City
	dist    float64
}

func (f *fakeCities) FindByName(_ context.Context, name string) (*model.City, error) {
	if c, ok := f.byName[name]; ok {
		return &c, nil
	}
	return nil, nil
}

func (f *fakeCities) FindNearest(_ context.Context, _, _ float64) (*model.City, float64, error) {
	return f.nearest, f.dist, nil
}

func TestGazetteerProvider(t *testing.T) {
	halle := model.City{ID: 2911522, Name: "Halle (Saale)", Latitude: 51.48, Longitude: 11.97}
	cities := &fakeCities{byName: map[string]model.City{"Halle": halle}, nearest: &halle, dist: 12}
	provider := NewGazetteerProvider(cities)

	point, err := provider.LookupName(context.Background(), "Halle")
	require.NoError(t, err)
	assert.Equal(t, &GeoPoint{Lat: 51.48, Lng: 11.97, CityLabel: "Halle (Saale)"}, point)

	point, err = provider.LookupName(context.Background(), "Atlantis")
	require.NoError(t, err)
	assert.Nil(t, point)

	place, err := provider.LookupCoordinates(context.Background(), 51.5, 12.0)
	require.NoError(t, err)
	assert.Equal(t, "Halle (Saale)", place.CityLabel)

	cities.dist = 80
	place, err = provider.LookupCoordinates(context.Background(), 52.5, 13.4)
	require.NoError(t, err)
	assert.Nil(t, place, "nearest city beyond range is no match")
}
