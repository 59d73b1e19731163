package client

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWithHTTPClient(t *testing.T) {
	hc := &http.Client{Timeout: time.Second}
	c := &Client{}
	WithHTTPClient(hc)(c)
	assert.Same(t, hc, c.httpClient)

	WithHTTPClient(nil)(c)
	assert.Same(t, hc, c.httpClient)
}

func TestWithTimeout(t *testing.T) {
	c := &Client{httpClient: &http.Client{Timeout: 30 * time.Second}}
	WithTimeout(0)(c)
	assert.Equal(t, 30*time.Second, c.httpClient.Timeout)
	WithTimeout(2 * time.Second)(c)
	assert.Equal(t, 2*time.Second, c.httpClient.Timeout)

	WithTimeout(time.Second)(&Client{})
}

func TestWithLogger(t *testing.T) {
	c := &Client{logger: noopLogger{}}
	WithLogger(nil)(c)
	assert.Equal(t, noopLogger{}, c.logger)

	l := &testLogger{}
	WithLogger(l)(c)
	assert.Same(t, l, c.logger)
}

func TestWithRetryMax(t *testing.T) {
	c := &Client{retryMax: 3}
	WithRetryMax(-1)(c)
	assert.Equal(t, 3, c.retryMax)
	WithRetryMax(0)(c)
	assert.Equal(t, 0, c.retryMax)
}

func TestWithRetryWait(t *testing.T) {
	tests := []struct {
		name    string
		min     time.Duration
		max     time.Duration
		wantMin time.Duration
		wantMax time.Duration
	}{
		{"valid range", time.Second, 5 * time.Second, time.Second, 5 * time.Second},
		{"equal values", 2 * time.Second, 2 * time.Second, 2 * time.Second, 2 * time.Second},
		{"zero min", 0, 5 * time.Second, time.Millisecond, time.Minute},
		{"max below min", 5 * time.Second, 2 * time.Second, 5 * time.Second, time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Client{retryWaitMin: time.Millisecond, retryWaitMax: time.Minute}
			WithRetryWait(tt.min, tt.max)(c)
			assert.Equal(t, tt.wantMin, c.retryWaitMin)
			assert.Equal(t, tt.wantMax, c.retryWaitMax)
		})
	}
}

func TestWithUserAgent(t *testing.T) {
	c := &Client{userAgent: "default"}
	WithUserAgent("")(c)
	assert.Equal(t, "default", c.userAgent)
	WithUserAgent("custom-agent/1.0")(c)
	assert.Equal(t, "custom-agent/1.0", c.userAgent)
}

type testLogger struct {
	debugCalled bool
	infoCalled  bool
	errorCalled bool
}

func (l *testLogger) Debugf(format string, args ...interface{}) { l.debugCalled = true }
func (l *testLogger) Infof(format string, args ...interface{})  { l.infoCalled = true }
func (l *testLogger) Errorf(format string, args ...interface{}) { l.errorCalled = true }
