package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"igbenford/pkg/dataset"
	errs "igbenford/pkg/errors"
	"igbenford/pkg/logger"
	"igbenford/pkg/ratelimit"
)

// DefaultUserAgent is sent when no user agent is configured
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"

// Options configures a Client
type Options struct {
	BaseURL   string
	SessionID string
	CSRFToken string
	UserAgent string
	Timeout   time.Duration
	// PageSize is the number of followers requested per page
	PageSize int
	// Limiter, when set, is waited on before every request
	Limiter ratelimit.Limiter
}

// Client talks to the Instagram web API. It implements
// dataset.MetricFetcher (follower count of a username) and
// dataset.EntitySource (followers of a username).
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	baseURL    string
	pageSize   int
	limiter    ratelimit.Limiter
	logger     logger.Logger
}

var (
	_ dataset.MetricFetcher = (*Client)(nil)
	_ dataset.EntitySource  = (*Client)(nil)
)

// NewClient creates a new Instagram API client
func NewClient(opts Options, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = BaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	headers := map[string]string{
		"User-Agent":       opts.UserAgent,
		"Accept":           "application/json, text/plain, */*",
		"Accept-Language":  "en-US,en;q=0.9",
		"X-IG-App-ID":      AppID,
		"X-Requested-With": "XMLHttpRequest",
		"Referer":          opts.BaseURL + "/",
	}
	if opts.SessionID != "" {
		cookie := "sessionid=" + opts.SessionID
		if opts.CSRFToken != "" {
			cookie += "; csrftoken=" + opts.CSRFToken
		}
		headers["Cookie"] = cookie
	}
	if opts.CSRFToken != "" {
		headers["X-CSRFToken"] = opts.CSRFToken
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		headers:  headers,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		pageSize: opts.PageSize,
		limiter:  opts.Limiter,
		logger:   log.WithField("component", "instagram"),
	}
}

// doRequest performs an HTTP request with the configured headers
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.Wrap(errs.KindTransient, fmt.Errorf("network error: %w", err), 0)
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": duration,
	})

	return resp, nil
}

// GetJSON performs a GET request and decodes the JSON response
func (c *Client) GetJSON(ctx context.Context, url string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errs.Wrap(errs.KindPermanent, fmt.Errorf("failed to create request: %w", err), 0)
	}

	resp, err := c.doRequest(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return errs.Wrap(errs.KindTransient, fmt.Errorf("failed to read response body: %w", err), resp.StatusCode)
	}

	if err := json.Unmarshal(body, target); err != nil {
		bodyPreview := string(body)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200] + "..."
		}

		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          url,
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": bodyPreview,
		})
		// Instagram answers with an HTML login page when the session expired,
		// which is not conclusive on its own
		return errs.Wrap(errs.KindUnknown, fmt.Errorf("failed to parse JSON: %w", err), resp.StatusCode)
	}

	return nil
}

// checkResponseStatus maps non-2xx responses onto failure kinds
func (c *Client) checkResponseStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	kind := errs.KindFromStatusCode(resp.StatusCode)
	fields := map[string]interface{}{
		"status": resp.StatusCode,
		"url":    resp.Request.URL.String(),
		"kind":   string(kind),
	}

	var message string
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		message = "authentication required"
		c.logger.WarnWithFields("authentication error", fields)
	case http.StatusNotFound:
		message = "resource not found"
		c.logger.WarnWithFields("resource not found", fields)
	case http.StatusTooManyRequests:
		message = "rate limit exceeded"
		c.logger.WarnWithFields("rate limit exceeded", fields)
	default:
		if resp.StatusCode >= 500 {
			message = "server error"
			c.logger.ErrorWithFields("server error", fields)
		} else {
			message = fmt.Sprintf("unexpected status code: %d", resp.StatusCode)
			c.logger.ErrorWithFields("unexpected API error", fields)
		}
	}

	return &errs.Error{Kind: kind, Message: message, Code: resp.StatusCode}
}

// FetchUserProfile fetches the profile of username
func (c *Client) FetchUserProfile(ctx context.Context, username string) (*User, error) {
	username = NormalizeUsername(username)
	if !IsValidUsername(username) {
		return nil, errs.Permanent("invalid username %q", username)
	}
	url := GetProfileURL(c.baseURL, username)

	c.logger.DebugWithFields("fetching user profile", map[string]interface{}{
		"username": username,
		"url":      url,
	})

	var response ProfileResponse
	if err := c.GetJSON(ctx, url, &response); err != nil {
		return nil, err
	}

	if response.RequiresToLogin {
		c.logger.WarnWithFields("authentication required for profile", map[string]interface{}{
			"username": username,
		})
		return nil, &errs.Error{
			Kind:    errs.KindPermanent,
			Message: "Instagram requires authentication to view this profile",
			Code:    http.StatusUnauthorized,
		}
	}
	if response.Data.User == nil {
		return nil, &errs.Error{
			Kind:    errs.KindPermanent,
			Message: fmt.Sprintf("profile %s not found", username),
			Code:    http.StatusNotFound,
		}
	}

	return response.Data.User, nil
}

// GetMetric returns the follower count of username
func (c *Client) GetMetric(ctx context.Context, username string) (int64, error) {
	user, err := c.FetchUserProfile(ctx, username)
	if err != nil {
		return 0, err
	}
	return user.EdgeFollowedBy.Count, nil
}

// FetchFollowersPage fetches one page of followers of userID
func (c *Client) FetchFollowersPage(ctx context.Context, userID, maxID string) (*FollowersPage, error) {
	url := GetFollowersURL(c.baseURL, userID, maxID, c.pageSize)

	var page FollowersPage
	if err := c.GetJSON(ctx, url, &page); err != nil {
		return nil, err
	}
	if page.Status != "" && page.Status != "ok" {
		return nil, errs.Transient("followers page returned status %q", page.Status)
	}
	return &page, nil
}

// ListEntities returns the usernames following root, in the order the API
// pages them
func (c *Client) ListEntities(ctx context.Context, root string) ([]dataset.Entity, error) {
	user, err := c.FetchUserProfile(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}

	c.logger.InfoWithFields("Listing followers", map[string]interface{}{
		"username":  user.Username,
		"user_id":   user.ID,
		"followers": user.EdgeFollowedBy.Count,
	})

	var (
		entities []dataset.Entity
		seen     = make(map[string]struct{})
		maxID    string
		page     int
	)
	for {
		page++
		resp, err := c.FetchFollowersPage(ctx, user.ID, maxID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch followers page %d: %w", page, err)
		}

		for _, node := range resp.Users {
			if node.Username == "" {
				continue
			}
			if _, dup := seen[node.Username]; dup {
				continue
			}
			seen[node.Username] = struct{}{}
			entities = append(entities, dataset.Entity(node.Username))
		}

		c.logger.DebugWithFields("Fetched followers page", map[string]interface{}{
			"page":  page,
			"users": len(resp.Users),
			"total": len(entities),
		})

		next := string(resp.NextMaxID)
		if next == "" || next == maxID {
			break
		}
		maxID = next

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	return entities, nil
}

// IsAuthError reports whether err means the session is missing or expired
func IsAuthError(err error) bool {
	var e *errs.Error
	if errors.As(err, &e) {
		return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
	}
	return false
}
