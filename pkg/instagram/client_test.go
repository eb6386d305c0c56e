package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igbenford/pkg/dataset"
	errs "igbenford/pkg/errors"
	"igbenford/pkg/logger"
	"igbenford/pkg/ratelimit"
)

func profileJSON(id, username string, followers int64) string {
	return fmt.Sprintf(`{"data":{"user":{"id":%q,"username":%q,"edge_followed_by":{"count":%d},"edge_follow":{"count":1}}},"status":"ok"}`,
		id, username, followers)
}

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client, *logger.TestLogger) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	log := logger.NewTestLogger()
	client := NewClient(Options{
		BaseURL:   server.URL,
		SessionID: "sess",
		CSRFToken: "csrf",
		Timeout:   5 * time.Second,
		PageSize:  2,
	}, log)
	return server, client, log
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(Options{}, logger.NewTestLogger())

	assert.Equal(t, BaseURL, client.baseURL)
	assert.Equal(t, DefaultUserAgent, client.headers["User-Agent"])
	assert.Equal(t, 30*time.Second, client.httpClient.Timeout)
	assert.NotContains(t, client.headers, "Cookie")
}

func TestGetMetric(t *testing.T) {
	var gotCookie, gotToken, gotUser string
	_, client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		gotToken = r.Header.Get("X-CSRFToken")
		gotUser = r.URL.Query().Get("username")
		assert.Equal(t, ProfileEndpoint, r.URL.Path)
		fmt.Fprint(w, profileJSON("1", "alice", 1234))
	})

	count, err := client.GetMetric(context.Background(), "@alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1234), count)
	assert.Equal(t, "sessionid=sess; csrftoken=csrf", gotCookie)
	assert.Equal(t, "csrf", gotToken)
	assert.Equal(t, "alice", gotUser)
}

func TestGetMetricStatusKinds(t *testing.T) {
	tests := []struct {
		status int
		kind   errs.Kind
	}{
		{http.StatusTooManyRequests, errs.KindTransient},
		{http.StatusInternalServerError, errs.KindTransient},
		{http.StatusServiceUnavailable, errs.KindTransient},
		{http.StatusNotFound, errs.KindPermanent},
		{http.StatusUnauthorized, errs.KindPermanent},
		{http.StatusForbidden, errs.KindPermanent},
		{http.StatusConflict, errs.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			_, client, log := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			_, err := client.GetMetric(context.Background(), "bob")
			require.Error(t, err)
			assert.Equal(t, tt.kind, errs.KindOf(err))

			var e *errs.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.status, e.Code)
			assert.NotEmpty(t, log.GetMessages())
		})
	}
}

func TestGetMetricLoginRequired(t *testing.T) {
	_, client, log := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"requires_to_login":true}`)
	})

	_, err := client.GetMetric(context.Background(), "carol")
	require.Error(t, err)
	assert.Equal(t, errs.KindPermanent, errs.KindOf(err))
	assert.True(t, IsAuthError(err))
	assert.True(t, log.HasMessage("authentication required for profile"))
}

func TestGetMetricMissingUser(t *testing.T) {
	_, client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"user":null},"status":"ok"}`)
	})

	_, err := client.GetMetric(context.Background(), "ghost")
	assert.Equal(t, errs.KindPermanent, errs.KindOf(err))
}

func TestGetMetricInvalidJSON(t *testing.T) {
	_, client, log := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>login</html>`)
	})

	_, err := client.GetMetric(context.Background(), "dave")
	require.Error(t, err)
	assert.Equal(t, errs.KindUnknown, errs.KindOf(err))
	assert.True(t, log.HasMessage("failed to parse JSON response"))
}

func TestGetMetricInvalidUsername(t *testing.T) {
	var calls int32
	_, client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	_, err := client.GetMetric(context.Background(), "not a user!")
	assert.Equal(t, errs.KindPermanent, errs.KindOf(err))
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestGetMetricNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(Options{BaseURL: url, Timeout: time.Second}, logger.NewTestLogger())
	_, err := client.GetMetric(context.Background(), "erin")
	require.Error(t, err)
	assert.Equal(t, errs.KindTransient, errs.KindOf(err))
}

func TestGetMetricCancelled(t *testing.T) {
	_, client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, profileJSON("1", "frank", 1))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetMetric(ctx, "frank")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGetMetricWaitsOnLimiter(t *testing.T) {
	_, client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, profileJSON("1", "gina", 5))
	})

	var waits []time.Duration
	now := time.Unix(0, 0)
	client.limiter = ratelimit.NewSlidingWindow(1, time.Hour, ratelimit.WithClock(
		func() time.Time { return now },
		func(ctx context.Context, d time.Duration) error {
			waits = append(waits, d)
			now = now.Add(d)
			return nil
		},
	))

	for i := 0; i < 2; i++ {
		_, err := client.GetMetric(context.Background(), "gina")
		require.NoError(t, err)
	}
	assert.Equal(t, []time.Duration{time.Hour}, waits)
}

func TestListEntitiesPaginates(t *testing.T) {
	pages := map[string]FollowersPage{
		"": {
			Users:     []FollowerNode{{PK: "11", Username: "amy"}, {PK: "12", Username: "ben"}},
			NextMaxID: "2",
			Status:    "ok",
		},
		"2": {
			Users:     []FollowerNode{{PK: "12", Username: "ben"}, {PK: "13", Username: "cat"}},
			NextMaxID: "4",
			Status:    "ok",
		},
		"4": {
			Users:  []FollowerNode{{PK: "14", Username: "dan"}},
			Status: "ok",
		},
	}

	var requested []string
	_, client, log := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == ProfileEndpoint:
			fmt.Fprint(w, profileJSON("99", "root", 4))
		case r.URL.Path == "/api/v1/friendships/99/followers/":
			assert.Equal(t, "2", r.URL.Query().Get("count"))
			maxID := r.URL.Query().Get("max_id")
			requested = append(requested, maxID)
			assert.NoError(t, json.NewEncoder(w).Encode(pages[maxID]))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	entities, err := client.ListEntities(context.Background(), "root")
	require.NoError(t, err)
	assert.Equal(t, []dataset.Entity{"amy", "ben", "cat", "dan"}, entities)
	assert.Equal(t, []string{"", "2", "4"}, requested)
	assert.True(t, log.HasMessage("Listing followers"))
}

func TestListEntitiesFailure(t *testing.T) {
	_, client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == ProfileEndpoint {
			fmt.Fprint(w, profileJSON("99", "root", 4))
			return
		}
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := client.ListEntities(context.Background(), "root")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "followers page 1")
	assert.True(t, IsAuthError(err))
}

func TestCursorUnmarshal(t *testing.T) {
	tests := map[string]Cursor{
		`{"next_max_id":"QVFE"}`: "QVFE",
		`{"next_max_id":150}`:    "150",
		`{"next_max_id":null}`:   "",
		`{}`:                     "",
	}
	for input, want := range tests {
		var page FollowersPage
		require.NoError(t, json.Unmarshal([]byte(input), &page), input)
		assert.Equal(t, want, page.NextMaxID, input)
	}

	var page FollowersPage
	assert.Error(t, json.Unmarshal([]byte(`{"next_max_id":{}}`), &page))
}

func TestIsAuthError(t *testing.T) {
	assert.False(t, IsAuthError(nil))
	assert.False(t, IsAuthError(errs.Transient("timeout")))
	assert.True(t, IsAuthError(fmt.Errorf("wrapped: %w", &errs.Error{Kind: errs.KindPermanent, Code: 401})))
	assert.False(t, IsAuthError(&errs.Error{Kind: errs.KindPermanent, Code: 404}))
	assert.True(t, strings.HasPrefix(DefaultUserAgent, "Mozilla/5.0"))
}
