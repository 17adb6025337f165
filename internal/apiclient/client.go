// Package apiclient is a typed client of the expensync REST API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

const maxErrorBody = 64 << 10

type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

// SetToken sets the bearer token sent with every request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "expensync-client/1")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do sends req and decodes a JSON response into out when out is non-nil.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		return &networkError{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return parseError(resp.StatusCode, body)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

// Health calls GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/healthz", nil, nil)
}

func (c *Client) Register(ctx context.Context, email, name, password string) (AuthResult, error) {
	var res AuthResult
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/register",
		map[string]string{"email": email, "name": name, "password": password}, &res)
	return res, err
}

func (c *Client) Login(ctx context.Context, email, password string) (AuthResult, error) {
	var res AuthResult
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/login",
		map[string]string{"email": email, "password": password}, &res)
	return res, err
}

func (c *Client) Me(ctx context.Context) (User, error) {
	var u User
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/me", nil, &u)
	return u, err
}

// CreateExpense posts in. Re-sending the same ClientID returns the stored
// expense instead of creating a duplicate.
func (c *Client) CreateExpense(ctx context.Context, in ExpenseInput) (Expense, error) {
	var e Expense
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/expenses", in, &e)
	return e, err
}

func (c *Client) ListExpenses(ctx context.Context, opts ListOptions) ([]Expense, error) {
	var res struct {
		Expenses []Expense `json:"expenses"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/expenses"+opts.query(), nil, &res)
	return res.Expenses, err
}

func (c *Client) GetExpense(ctx context.Context, id int64) (Expense, error) {
	var e Expense
	err := c.doJSON(ctx, http.MethodGet, expensePath(id), nil, &e)
	return e, err
}

func (c *Client) UpdateExpense(ctx context.Context, id int64, in ExpenseInput) (Expense, error) {
	var e Expense
	err := c.doJSON(ctx, http.MethodPut, expensePath(id), in, &e)
	return e, err
}

func (c *Client) DeleteExpense(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, expensePath(id), nil, nil)
}

// UploadPhoto sends the file at path as the expense photo.
func (c *Client) UploadPhoto(ctx context.Context, id int64, path string) (Expense, error) {
	f, err := os.Open(path)
	if err != nil {
		return Expense{}, fmt.Errorf("open photo: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("photo", filepath.Base(path))
	if err != nil {
		return Expense{}, fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return Expense{}, fmt.Errorf("read photo: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Expense{}, fmt.Errorf("build multipart body: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, expensePath(id)+"/photo", &buf)
	if err != nil {
		return Expense{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var e Expense
	err = c.do(req, &e)
	return e, err
}

func (c *Client) Summary(ctx context.Context, opts ListOptions) (Summary, error) {
	var s Summary
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/summary"+opts.query(), nil, &s)
	return s, err
}

func (c *Client) RegisterPushToken(ctx context.Context, token, platform string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/v1/push-tokens",
		map[string]string{"token": token, "platform": platform}, nil)
}

func (c *Client) UnregisterPushToken(ctx context.Context, token string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/v1/push-tokens/"+url.PathEscape(token), nil, nil)
}

func (c *Client) AdminListUsers(ctx context.Context) ([]User, error) {
	var res struct {
		Users []User `json:"users"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/admin/users", nil, &res)
	return res.Users, err
}

func (c *Client) AdminSetRole(ctx context.Context, userID int64, role string) (User, error) {
	var u User
	err := c.doJSON(ctx, http.MethodPut, adminUserPath(userID)+"/role", map[string]string{"role": role}, &u)
	return u, err
}

func (c *Client) AdminSetDisabled(ctx context.Context, userID int64, disabled bool) (User, error) {
	var u User
	err := c.doJSON(ctx, http.MethodPut, adminUserPath(userID)+"/disabled", map[string]bool{"disabled": disabled}, &u)
	return u, err
}

func (c *Client) AdminDeleteUser(ctx context.Context, userID int64) error {
	return c.doJSON(ctx, http.MethodDelete, adminUserPath(userID), nil, nil)
}

func (c *Client) AdminDashboard(ctx context.Context) (Dashboard, error) {
	var d Dashboard
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/admin/dashboard", nil, &d)
	return d, err
}

func (c *Client) AdminBroadcast(ctx context.Context, title, body string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/v1/admin/notifications",
		map[string]string{"title": title, "body": body}, nil)
}

func expensePath(id int64) string {
	return "/api/v1/expenses/" + strconv.FormatInt(id, 10)
}

func adminUserPath(id int64) string {
	return "/api/v1/admin/users/" + strconv.FormatInt(id, 10)
}

func (o ListOptions) query() string {
	q := url.Values{}
	if o.From != "" {
		q.Set("from", o.From)
	}
	if o.To != "" {
		q.Set("to", o.To)
	}
	if o.Category != "" {
		q.Set("category", o.Category)
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Offset > 0 {
		q.Set("offset", strconv.Itoa(o.Offset))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}
