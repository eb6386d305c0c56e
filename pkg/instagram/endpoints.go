package instagram

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// BaseURL is the base URL for Instagram
	BaseURL = "https://www.instagram.com"

	// ProfileEndpoint is the endpoint pattern for user profiles
	ProfileEndpoint = "/api/v1/users/web_profile_info/"

	// FollowersEndpoint lists the followers of a user id
	FollowersEndpoint = "/api/v1/friendships/%s/followers/"

	// DefaultPageSize is the number of followers requested per page
	DefaultPageSize = 50

	// MaxPageSize is the largest page the followers endpoint serves
	MaxPageSize = 200

	// AppID is the web client id Instagram expects on API calls
	AppID = "936619743392459"
)

// GetProfileURL constructs the URL for fetching a user's profile
func GetProfileURL(baseURL, username string) string {
	params := url.Values{}
	params.Set("username", username)

	return fmt.Sprintf("%s%s?%s", baseURL, ProfileEndpoint, params.Encode())
}

// GetFollowersURL constructs the URL for one page of a user's followers
func GetFollowersURL(baseURL, userID, maxID string, count int) string {
	if count <= 0 {
		count = DefaultPageSize
	} else if count > MaxPageSize {
		count = MaxPageSize
	}

	params := url.Values{}
	params.Set("count", strconv.Itoa(count))
	if maxID != "" {
		params.Set("max_id", maxID)
	}

	path := fmt.Sprintf(FollowersEndpoint, url.PathEscape(userID))
	return fmt.Sprintf("%s%s?%s", baseURL, path, params.Encode())
}

// IsValidUsername checks if a username is valid according to Instagram rules
func IsValidUsername(username string) bool {
	if username == "" || len(username) > 30 {
		return false
	}

	// Instagram usernames can only contain letters, numbers, periods, and underscores
	for _, char := range username {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '.' || char == '_') {
			return false
		}
	}

	return true
}

// NormalizeUsername strips a leading @ and surrounding slashes or spaces
func NormalizeUsername(username string) string {
	username = strings.TrimSpace(username)
	username = strings.TrimPrefix(username, "@")
	return strings.TrimRight(username, "/ ")
}
