package instagram

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProfileURL(t *testing.T) {
	tests := []struct {
		name     string
		username string
		expected string
	}{
		{"simple username", "testuser", BaseURL + ProfileEndpoint + "?username=testuser"},
		{"username with underscore", "test_user", BaseURL + ProfileEndpoint + "?username=test_user"},
		{"username with dots", "test.user", BaseURL + ProfileEndpoint + "?username=test.user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GetProfileURL(BaseURL, tt.username)
			assert.Equal(t, tt.expected, result)

			_, err := url.Parse(result)
			assert.NoError(t, err)
		})
	}
}

func TestGetFollowersURL(t *testing.T) {
	tests := []struct {
		name   string
		maxID  string
		count  int
		params url.Values
	}{
		{"first page", "", 0, url.Values{"count": {"50"}}},
		{"next page", "QVFE", 25, url.Values{"count": {"25"}, "max_id": {"QVFE"}}},
		{"clamped", "", 5000, url.Values{"count": {"200"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := GetFollowersURL("http://host", "42", tt.maxID, tt.count)
			u, err := url.Parse(raw)
			require.NoError(t, err)
			assert.Equal(t, "/api/v1/friendships/42/followers/", u.Path)
			assert.Equal(t, tt.params, u.Query())
		})
	}
}

func TestIsValidUsername(t *testing.T) {
	valid := []string{"a", "user.name", "user_name", "User123", "abcdefghijklmnopqrstuvwxyz1234"}
	invalid := []string{"", "user name", "user@name", "user-name", "abcdefghijklmnopqrstuvwxyz12345"}

	for _, u := range valid {
		assert.True(t, IsValidUsername(u), u)
	}
	for _, u := range invalid {
		assert.False(t, IsValidUsername(u), u)
	}
}

func TestNormalizeUsername(t *testing.T) {
	assert.Equal(t, "alice", NormalizeUsername("@alice"))
	assert.Equal(t, "alice", NormalizeUsername("  alice/ "))
	assert.Equal(t, "", NormalizeUsername(""))
}
