package maps

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PlaceFinder-App/internal/domain/model"
)

var testKey = model.CoordinateKey{Latitude: 40.7128, Longitude: -74.006}

const okResponse = `{
  "status": "OK",
  "results": [
    {
      "place_id": "p1",
      "name": "Joe's Pizza",
      "business_status": "OPERATIONAL",
      "rating": 4.5,
      "user_ratings_total": 1200,
      "vicinity": "7 Carmine St",
      "types": ["restaurant", "food"],
      "price_level": 1,
      "icon": "https://example.com/icon.png",
      "photos": [{"photo_reference": "ref-1", "height": 400, "width": 600}],
      "opening_hours": {"open_now": true},
      "geometry": {"location": {"lat": 40.7306, "lng": -74.0021}}
    },
    {
      "place_id": "p2",
      "name": "No Extras"
    },
    {
      "name": "missing id"
    }
  ]
}`

func newTestProvider(t *testing.T, url string) *GooglePlacesProvider {
	return NewGooglePlacesProvider(GooglePlacesOptions{
		APIKey:       "test-key",
		BaseURL:      url,
		Timeout:      time.Second,
		MaxAttempts:  3,
		RetryBackoff: 10 * time.Millisecond,
		Logger:       testr.New(t),
	})
}

func TestFetchNearby_ParsesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "40.7128,-74.0060", q.Get("location"))
		assert.Equal(t, "5000", q.Get("radius"))
		assert.Equal(t, "restaurant", q.Get("type"))
		assert.Equal(t, "test-key", q.Get("key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(okResponse))
	}))
	defer srv.Close()

	places, err := newTestProvider(t, srv.URL).FetchNearby(context.Background(), testKey)
	require.NoError(t, err)
	require.Len(t, places, 2)

	p := places[0]
	assert.Equal(t, "p1", p.PlaceID)
	assert.Equal(t, testKey, p.CoordinateKey)
	assert.Equal(t, "OPERATIONAL", p.BusinessStatus)
	assert.Equal(t, 4.5, *p.Rating)
	assert.Equal(t, 1200, *p.ReviewCount)
	assert.Equal(t, []string{"restaurant", "food"}, p.Categories)
	assert.Equal(t, 1, *p.PriceLevel)
	assert.Equal(t, "ref-1", p.PhotoRef)
	assert.Equal(t, 400, *p.PhotoHeight)
	assert.Equal(t, 600, *p.PhotoWidth)
	require.NotNil(t, p.OpenNow)
	assert.True(t, *p.OpenNow)
	require.NotNil(t, p.Location)
	assert.Equal(t, 40.7306, p.Location.Lat())
	assert.Equal(t, -74.0021, p.Location.Lon())

	bare := places[1]
	assert.Nil(t, bare.Rating)
	assert.Nil(t, bare.OpenNow)
	assert.Nil(t, bare.Location)
	assert.Nil(t, bare.PhotoHeight)
}

func TestFetchNearby_ZeroResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "ZERO_RESULTS", "results": []}`))
	}))
	defer srv.Close()

	places, err := newTestProvider(t, srv.URL).FetchNearby(context.Background(), testKey)
	require.NoError(t, err)
	assert.NotNil(t, places)
	assert.Empty(t, places)
}

func TestFetchNearby_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	places, err := newTestProvider(t, srv.URL).FetchNearby(context.Background(), testKey)

	var fetchErr *model.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, 3, fetchErr.Attempts)
	assert.Equal(t, http.StatusServiceUnavailable, fetchErr.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
	assert.NotNil(t, places)
	assert.Empty(t, places)
}

func TestFetchNearby_RecoversAfterTransientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusBadGateway)
		case 2:
			_, _ = w.Write([]byte(`{"status": "UNKNOWN_ERROR", "results": []}`))
		default:
			_, _ = w.Write([]byte(okResponse))
		}
	}))
	defer srv.Close()

	places, err := newTestProvider(t, srv.URL).FetchNearby(context.Background(), testKey)
	require.NoError(t, err)
	assert.Len(t, places, 2)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchNearby_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestProvider(t, srv.URL).FetchNearby(context.Background(), testKey)

	var fetchErr *model.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, 1, fetchErr.Attempts)
	assert.Equal(t, http.StatusForbidden, fetchErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchNearby_APIStatusError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"status": "REQUEST_DENIED", "error_message": "The provided API key is invalid.", "results": []}`))
	}))
	defer srv.Close()

	places, err := newTestProvider(t, srv.URL).FetchNearby(context.Background(), testKey)

	var fetchErr *model.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, "REQUEST_DENIED", fetchErr.Status)
	assert.Contains(t, fetchErr.Error(), "API key is invalid")
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, places)
}

func TestFetchNearby_ContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	provider := NewGooglePlacesProvider(GooglePlacesOptions{
		BaseURL:      srv.URL,
		MaxAttempts:  3,
		RetryBackoff: time.Second,
		Logger:       testr.New(t),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := provider.FetchNearby(ctx, testKey)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestBudget(t *testing.T) {
	provider := NewGooglePlacesProvider(GooglePlacesOptions{})
	// 5s × 3 + 500ms + 1s
	assert.Equal(t, 16500*time.Millisecond, provider.Budget())
}

func TestBackoffIsCapped(t *testing.T) {
	provider := NewGooglePlacesProvider(GooglePlacesOptions{MaxAttempts: 64})

	assert.Equal(t, 500*time.Millisecond, provider.backoff(0))
	assert.Equal(t, 4*time.Second, provider.backoff(3))
	assert.Equal(t, MaxRetryBackoff, provider.backoff(6))
	// シフトならオーバーフローする回数でも上限のまま
	assert.Equal(t, MaxRetryBackoff, provider.backoff(40))
	assert.Equal(t, MaxRetryBackoff, provider.backoff(63))

	// 64回 × 5s + (0.5+1+2+4+8+16)s + 57 × 30s
	want := 64*5*time.Second + 31500*time.Millisecond + 57*MaxRetryBackoff
	assert.Equal(t, want, provider.Budget())
}
