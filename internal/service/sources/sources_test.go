package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StormFlow/internal/service/ratelimit"
	"StormFlow/pkg/config"
	pkghttp "StormFlow/pkg/http"
	"StormFlow/pkg/logger"
)

func testGate(t *testing.T, failFast bool, retries int) (*Gate, *ratelimit.Limiter) {
	t.Helper()
	lim := ratelimit.New([]ratelimit.Policy{{
		ID:      "weather",
		Windows: []ratelimit.Window{{Max: 1000, Duration: time.Minute}},
	}})
	g := NewGate("test", "weather", lim, GateConfig{
		MaxRetries: retries,
		BackoffMin: time.Millisecond,
		BackoffMax: 5 * time.Millisecond,
		FailFast:   failFast,
	}, nil, logger.Nop())
	return g, lim
}

// denialCounter records only admission denials.
type denialCounter struct {
	denied atomic.Int32
}

func (d *denialCounter) RecordIngested(string, int)    {}
func (d *denialCounter) RecordDropped(string, int)     {}
func (d *denialCounter) RecordError(string)            {}
func (d *denialCounter) RecordRateLimitDenied(string)  { d.denied.Add(1) }
func (d *denialCounter) RecordLatency(string, float64) {}
func (d *denialCounter) RecordCacheHit(bool)           {}

func testLocations() []config.LocationConfig {
	return []config.LocationConfig{{Name: "warsaw", Latitude: 52.23, Longitude: 21.01}}
}

func TestOpenMeteoNormalizesPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("current_weather"))
		w.Write([]byte(`{"current_weather":{"temperature":21.5,"windspeed":18.0,"winddirection":245,"weathercode":61,"time":"2026-03-01T12:30"}}`))
	}))
	defer srv.Close()

	gate, _ := testGate(t, false, 0)
	p := NewOpenMeteo(config.ProviderConfig{BaseURL: srv.URL}, testLocations(), pkghttp.NewClient(), gate, logger.Nop())

	obs, dropped, err := p.Fetch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, dropped)
	require.Len(t, obs, 1)

	o := obs[0]
	assert.Equal(t, "warsaw", o.LocationName)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC), o.Timestamp)
	assert.InDelta(t, 21.5, o.Temperature, 1e-9)
	assert.InDelta(t, 5.0, o.WindSpeed, 1e-9, "km/h converted to m/s")
	assert.Equal(t, int32(61), o.WeatherCode)
	assert.Equal(t, "rain", o.Description)
	assert.NotEmpty(t, o.RawData)
}

func TestOpenWeatherDropsMalformedRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// missing dt makes the record unusable
		w.Write([]byte(`{"main":{"temp":15.0,"humidity":60}}`))
	}))
	defer srv.Close()

	gate, _ := testGate(t, false, 0)
	p := NewOpenWeather(config.ProviderConfig{BaseURL: srv.URL, APIKey: "k"}, testLocations(), pkghttp.NewClient(), gate, logger.Nop())

	obs, dropped, err := p.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, obs)
	assert.Equal(t, 1, dropped)
}

func TestOpenWeatherRequiresAPIKey(t *testing.T) {
	gate, _ := testGate(t, false, 0)
	p := NewOpenWeather(config.ProviderConfig{}, testLocations(), pkghttp.NewClient(), gate, logger.Nop())
	_, _, err := p.Fetch(context.Background())
	assert.Error(t, err)
}

func TestWeatherAPIRejectsImpossibleReadings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"current":{"last_updated_epoch":1780000000,"temp_c":240.0,"humidity":55}}`))
	}))
	defer srv.Close()

	gate, _ := testGate(t, false, 0)
	p := NewWeatherAPI(config.ProviderConfig{BaseURL: srv.URL, APIKey: "k"}, testLocations(), pkghttp.NewClient(), gate, logger.Nop())

	obs, dropped, err := p.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, obs)
	assert.Equal(t, 1, dropped)
}

func TestPolymarketSplitsOutcomes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets", r.URL.Path)
		assert.Equal(t, "rain-in-nyc", r.URL.Query().Get("slug"))
		w.Write([]byte(`[{"id":"512","question":"Rain in NYC this week?","outcomes":"[\"Yes\",\"No\"]","outcomePrices":"[\"0.62\",\"0.38\"]","volume":"12345.5"}]`))
	}))
	defer srv.Close()

	gate, _ := testGate(t, false, 0)
	p := NewPolymarket(srv.URL, []string{"rain-in-nyc"}, pkghttp.NewClient(), gate, logger.Nop())
	p.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }

	quotes, dropped, err := p.Fetch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, dropped)
	require.Len(t, quotes, 2)

	assert.Equal(t, "512", quotes[0].MarketID)
	assert.Equal(t, "Yes", quotes[0].OutcomeName)
	assert.InDelta(t, 0.62, quotes[0].Probability, 1e-9)
	assert.InDelta(t, 12345.5, quotes[0].Volume, 1e-9)
	assert.Equal(t, "No", quotes[1].OutcomeName)
	assert.InDelta(t, 0.38, quotes[1].Probability, 1e-9)
	assert.True(t, quotes[0].Timestamp.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)))
}

func TestPolymarketDropsUnparsableOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"7","question":"q","outcomes":"[\"Yes\",\"No\"]","outcomePrices":"[\"0.5\",\"oops\"]","volume":"1"}]`))
	}))
	defer srv.Close()

	gate, _ := testGate(t, false, 0)
	p := NewPolymarket(srv.URL, []string{"m"}, pkghttp.NewClient(), gate, logger.Nop())

	quotes, dropped, err := p.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, 1, dropped)
}

func TestGateRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	gate, _ := testGate(t, false, 2)
	client := pkghttp.NewClient()

	err := gate.Do(context.Background(), func(ctx context.Context) error {
		return client.SendAndParse(ctx, &pkghttp.RequestOptions{Method: pkghttp.MethodGet, URL: srv.URL}, nil)
	})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGateDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	gate, _ := testGate(t, false, 3)
	client := pkghttp.NewClient()

	err := gate.Do(context.Background(), func(ctx context.Context) error {
		return client.SendAndParse(ctx, &pkghttp.RequestOptions{Method: pkghttp.MethodGet, URL: srv.URL}, nil)
	})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "4xx other than 429 is terminal")
}

func TestGatePenalizesBudgetOn429(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	lim := ratelimit.New([]ratelimit.Policy{{
		ID:      "weather",
		Windows: []ratelimit.Window{{Max: 8, Duration: time.Minute}},
	}})
	gate := NewGate("test", "weather", lim, GateConfig{
		MaxRetries: 1,
		BackoffMin: time.Millisecond,
		BackoffMax: time.Millisecond,
		FailFast:   true,
	}, nil, logger.Nop())
	client := pkghttp.NewClient()

	err := gate.Do(context.Background(), func(ctx context.Context) error {
		return client.SendAndParse(ctx, &pkghttp.RequestOptions{Method: pkghttp.MethodGet, URL: srv.URL}, nil)
	})
	require.Error(t, err)

	// Two calls went out (initial + one retry) and each 429 halved the
	// effective budget of 8 down to 2, so only those two slots are used
	// and the third admission in the shrunken budget is still possible
	// until it fills.
	var denied bool
	for i := 0; i < 8; i++ {
		d, err := lim.Admit("weather")
		require.NoError(t, err)
		if !d.Allowed {
			denied = true
			break
		}
	}
	assert.True(t, denied, "penalty must shrink the budget below the configured max")
}

func TestGateFailFastSurfacesRetryAfter(t *testing.T) {
	lim := ratelimit.New([]ratelimit.Policy{{
		ID:      "weather",
		Windows: []ratelimit.Window{{Max: 1, Duration: time.Minute}},
	}})
	m := &denialCounter{}
	gate := NewGate("test", "weather", lim, GateConfig{FailFast: true, BackoffMin: time.Millisecond}, m, logger.Nop())

	require.NoError(t, gate.Do(context.Background(), func(context.Context) error { return nil }))

	err := gate.Do(context.Background(), func(context.Context) error { return nil })
	var denied *AdmissionDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "weather", denied.Policy)
	assert.Greater(t, denied.RetryAfter, time.Duration(0))
	assert.Equal(t, int32(1), m.denied.Load())
}

func TestStreamKeepaliveStopsOnClose(t *testing.T) {
	var pings atomic.Int32
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.SetPingHandler(func(string) error {
			pings.Add(1)
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	s := NewPolymarketStream(wsURL, nil, time.Millisecond, 2*time.Millisecond, logger.Nop())

	before := runtime.NumGoroutine()
	// Repeated dials must replace the keepalive loop, not stack one per
	// connection.
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Connect(context.Background()))
	}
	require.Eventually(t, func() bool { return pings.Load() > 0 }, time.Second, time.Millisecond)
	require.NoError(t, s.Close())

	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+2
	}, time.Second, 5*time.Millisecond, "keepalive goroutines must exit with the connection")

	quiet := pings.Load()
	time.Sleep(20 * time.Millisecond)
	assert.LessOrEqual(t, pings.Load()-quiet, int32(1), "pings must stop after close")
}

func TestDecodePriceFrame(t *testing.T) {
	frame := []byte(`[{"event_type":"price_change","asset_id":"a1","market":"0xabc","price":"0.57","size":"120.5","timestamp":"1780000000000"},{"event_type":"book","asset_id":"a1"}]`)
	quotes := decodePriceFrame(frame)
	require.Len(t, quotes, 1)
	assert.Equal(t, "0xabc", quotes[0].MarketID)
	assert.InDelta(t, 0.57, quotes[0].Probability, 1e-9)
	assert.Equal(t, time.UnixMilli(1780000000000).UTC(), quotes[0].Timestamp)

	assert.Empty(t, decodePriceFrame([]byte(`not json`)))
	assert.Empty(t, decodePriceFrame([]byte(`{"event_type":"price_change","price":"nope","timestamp":"0"}`)))
}
