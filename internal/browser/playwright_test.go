package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var playwrightCheck struct {
	once sync.Once
	err  error
}

func requirePlaywright(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping browser integration tests in short mode")
	}
	playwrightCheck.once.Do(func() {
		driver := NewPlaywrightDriver(PlaywrightConfig{Headless: true})
		playwrightCheck.err = driver.Launch(context.Background())
		if playwrightCheck.err == nil {
			_ = driver.Close()
		}
	})
	if playwrightCheck.err != nil {
		t.Skipf("Playwright not available: %v", playwrightCheck.err)
	}
}

func TestPlaywrightDriverHidesAutomation(t *testing.T) {
	requirePlaywright(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<!DOCTYPE html><html><body>warm</body></html>`))
	}))
	defer ts.Close()

	pool := NewPool(NewPlaywrightDriver(PlaywrightConfig{
		Headless:          true,
		TargetURL:         ts.URL,
		NavigationTimeout: 10 * time.Second,
	}), PoolConfig{})
	defer pool.Cleanup()

	s, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer pool.Release(s)

	got, err := s.EvaluateString(context.Background(), `() => String(navigator.webdriver) + "," + typeof window.chrome`, nil)
	require.NoError(t, err)
	assert.Equal(t, "false,object", got)
}

func TestPlaywrightDriverNavigationFailure(t *testing.T) {
	requirePlaywright(t)

	driver := NewPlaywrightDriver(PlaywrightConfig{
		Headless:          true,
		TargetURL:         "http://127.0.0.1:1/unreachable",
		NavigationTimeout: 2 * time.Second,
	})
	require.NoError(t, driver.Launch(context.Background()))
	defer driver.Close()

	_, err := driver.NewContext(context.Background())
	assert.ErrorIs(t, err, ErrNavigation)
}
