package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeHost(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"portal http", "http://jwxt.ybu.edu.cn/jsxsd/", "jwxt.ybu.edu.cn"},
		{"mixed case", "https://JWXT.ybu.edu.cn/path", "jwxt.ybu.edu.cn"},
		{"no scheme", "jwxt.ybu.edu.cn/jsxsd", "jwxt.ybu.edu.cn"},
		{"host with port", "localhost:8080", "localhost"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeHost(tc.input); got != tc.expected {
				t.Errorf("SanitizeHost(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitAndObservers(t *testing.T) {
	Init()
	Init()

	if enrollmentAttemptsTotal == nil || captchaSolvesTotal == nil || httpRequestsTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	before := testutil.ToFloat64(enrollmentAttemptsTotal.WithLabelValues("grab", "success"))
	ObserveEnrollment("grab", "success")
	if got := testutil.ToFloat64(enrollmentAttemptsTotal.WithLabelValues("grab", "success")); got != before+1 {
		t.Errorf("expected enrollment counter to increase by 1, got %f -> %f", before, got)
	}

	ObserveAvailability("K-metrics", 7, nil)
	if got := testutil.ToFloat64(seatsRemaining.WithLabelValues("K-metrics")); got != 7 {
		t.Errorf("expected seats gauge 7, got %f", got)
	}
	errBefore := testutil.ToFloat64(availabilityChecksTotal.WithLabelValues("error"))
	ObserveAvailability("K-metrics", 0, errors.New("boom"))
	if got := testutil.ToFloat64(availabilityChecksTotal.WithLabelValues("error")); got != errBefore+1 {
		t.Errorf("expected error check counter to increase")
	}

	ObserveCaptcha("remote", true)
	if got := testutil.ToFloat64(captchaSolvesTotal.WithLabelValues("remote", "accepted")); got < 1 {
		t.Errorf("expected captcha counter to be observed, got %f", got)
	}
	ObserveRateLimitDelay("jwxt.ybu.edu.cn", 2*time.Second)
	if val := testutil.CollectAndCount(rateLimitDelaysSeconds); val <= 0 {
		t.Errorf("expected rate limit histogram to be observed")
	}
}

// Fuzz test for SanitizeHost.
func FuzzSanitizeHost(f *testing.F) {
	testcases := []string{"http://jwxt.ybu.edu.cn", "https://example.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeHost(orig) == "" {
			t.Errorf("SanitizeHost(%q) returned an empty string", orig)
		}
	})
}
