package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

var (
	ErrUnauthorized = errors.New("agency api rejected credentials")
	ErrNotFound     = errors.New("agency api resource not found")
)

// StatusError is returned for any other non-2xx response.
type StatusError struct {
	Path       string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("agency api %s failed with status %d", e.Path, e.StatusCode)
}

// SessionContext supplies the per-session values every agency API call needs.
type SessionContext interface {
	Token() string
	OrgID() string
	AgencyID() string
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	oauth      *oauth2.Config
}

func NewClient(baseURL, clientID string) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		oauth: &oauth2.Config{
			ClientID: clientID,
			Endpoint: oauth2.Endpoint{
				TokenURL:  baseURL + "/api/token/",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
}

// BaseURL returns the agency API root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// User is the current-user record returned alongside the permission list.
type User struct {
	ID          int    `json:"id"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	IsSuperuser bool   `json:"is_superuser"`
	IsStaff     bool   `json:"is_staff"`
}

// PermissionsResponse is the body of the permission fetch endpoint.
type PermissionsResponse struct {
	Permissions []string `json:"permissions"`
	User        User     `json:"user"`
}

func (c *Client) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// Login exchanges portal credentials for an agency API token using the
// password grant.
func (c *Client) Login(ctx context.Context, email, password string) (*oauth2.Token, error) {
	token, err := c.oauth.PasswordCredentialsToken(c.httpContext(ctx), email, password)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil &&
			(re.Response.StatusCode == http.StatusUnauthorized || re.Response.StatusCode == http.StatusBadRequest) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to obtain agency token: %w", err)
	}
	return token, nil
}

func (c *Client) authorized(ctx context.Context, sess SessionContext) *http.Client {
	hc := oauth2.NewClient(c.httpContext(ctx), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: sess.Token(),
		TokenType:   "Bearer",
	}))
	hc.Timeout = c.httpClient.Timeout
	return hc
}

func scopeQuery(sess SessionContext) url.Values {
	q := url.Values{}
	if org := sess.OrgID(); org != "" {
		q.Set("organization", org)
	}
	if agency := sess.AgencyID(); agency != "" {
		q.Set("agency", agency)
	}
	return q
}

func (c *Client) getJSON(ctx context.Context, sess SessionContext, path string, out interface{}) error {
	u := c.baseURL + path
	if q := scopeQuery(sess).Encode(); q != "" {
		u += "?" + q
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.authorized(ctx, sess).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &StatusError{Path: path, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// FetchPermissions gets the session user's permission codenames and user record.
func (c *Client) FetchPermissions(ctx context.Context, sess SessionContext) (*PermissionsResponse, error) {
	var resp PermissionsResponse
	if err := c.getJSON(ctx, sess, "/api/user-permissions/", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchBooking gets one booking snapshot as the loosely typed payload the
// API returns.
func (c *Client) FetchBooking(ctx context.Context, sess SessionContext, bookingID string) (map[string]interface{}, error) {
	var booking map[string]interface{}
	if err := c.getJSON(ctx, sess, "/api/bookings/"+url.PathEscape(bookingID)+"/", &booking); err != nil {
		return nil, err
	}
	return booking, nil
}

func (c *Client) FetchHotels(ctx context.Context, sess SessionContext) ([]map[string]interface{}, error) {
	return c.getList(ctx, sess, "/api/hotels/")
}

func (c *Client) FetchFoodPrices(ctx context.Context, sess SessionContext) ([]map[string]interface{}, error) {
	return c.getList(ctx, sess, "/api/food-prices/")
}

func (c *Client) FetchZiaratPrices(ctx context.Context, sess SessionContext) ([]map[string]interface{}, error) {
	return c.getList(ctx, sess, "/api/ziarat-prices/")
}

// getList accepts both a bare JSON array and a paginated {"results": [...]} body.
func (c *Client) getList(ctx context.Context, sess SessionContext, path string) ([]map[string]interface{}, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, sess, path, &raw); err != nil {
		return nil, err
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var items []map[string]interface{}
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("failed to decode %s list: %w", path, err)
		}
		return items, nil
	}

	var page struct {
		Results []map[string]interface{} `json:"results"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("failed to decode %s page: %w", path, err)
	}
	return page.Results, nil
}

// Ping checks that the agency API answers at all.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return &StatusError{Path: "/", StatusCode: resp.StatusCode}
	}
	return nil
}
