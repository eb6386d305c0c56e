package instagram

import (
	"bytes"
	"encoding/json"
)

// ProfileResponse is the web_profile_info payload
type ProfileResponse struct {
	RequiresToLogin bool   `json:"requires_to_login"`
	Data            Data   `json:"data"`
	Status          string `json:"status"`
}

// Data wraps the user information in the response
type Data struct {
	User *User `json:"user"`
}

// User represents an Instagram user profile
type User struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	IsPrivate      bool   `json:"is_private"`
	EdgeFollowedBy Count  `json:"edge_followed_by"`
	EdgeFollow     Count  `json:"edge_follow"`
}

// Count is a GraphQL edge counter
type Count struct {
	Count int64 `json:"count"`
}

// FollowersPage is one page of the followers endpoint
type FollowersPage struct {
	Users     []FollowerNode `json:"users"`
	NextMaxID Cursor         `json:"next_max_id"`
	BigList   bool           `json:"big_list"`
	Status    string         `json:"status"`
}

// FollowerNode is a follower entry
type FollowerNode struct {
	PK       json.Number `json:"pk"`
	Username string      `json:"username"`
}

// Cursor holds a pagination token that the API sends either as a string or
// as a number
type Cursor string

// UnmarshalJSON accepts strings, numbers and null
func (c *Cursor) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Cursor(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*c = Cursor(n.String())
	return nil
}
