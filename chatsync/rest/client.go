package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/eoncord/chatsync-go/chatsync"
)

// Client provides request/response API access to the chat server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new REST API client.
// baseURL should be the base URL of the API, e.g., "http://localhost:4000/api".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetHTTPClient allows setting a custom HTTP client.
func (c *Client) SetHTTPClient(client *http.Client) {
	if client != nil {
		c.httpClient = client
	}
}

// SetToken sets the bearer token for authenticated requests.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Token returns the bearer token in use.
func (c *Client) Token() string {
	return c.token
}

// Authentication endpoints

// Login authenticates an existing user and stores the returned token.
func (c *Client) Login(ctx context.Context, username string) (*AuthResponse, error) {
	return c.authenticate(ctx, "/auth/login", username)
}

// Signup creates a user and stores the returned token.
func (c *Client) Signup(ctx context.Context, username string) (*AuthResponse, error) {
	return c.authenticate(ctx, "/auth/signup", username)
}

func (c *Client) authenticate(ctx context.Context, path, username string) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.post(ctx, path, AuthRequest{Username: username}, &resp, false); err != nil {
		return nil, err
	}
	c.token = resp.Token
	return &resp, nil
}

// Message endpoints

// ListMessages retrieves up to limit messages of a conversation older than
// cursor, or the newest page when cursor is empty.
func (c *Client) ListMessages(ctx context.Context, conversationID string, limit int, cursor string) (*Page, error) {
	q := url.Values{}
	q.Set("conversationId", conversationID)
	q.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	var resp Page
	if err := c.get(ctx, "/messages?"+q.Encode(), &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateMessage persists a message without the push channel.
func (c *Client) CreateMessage(ctx context.Context, req CreateMessageRequest) (*chatsync.Message, error) {
	var resp chatsync.Message
	if err := c.post(ctx, "/messages", req, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadFile uploads one attachment and returns its reference.
func (c *Client) UploadFile(ctx context.Context, filename string, r io.Reader) (*chatsync.Attachment, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("copy file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/uploads", &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req, true)

	var resp uploadResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &chatsync.Attachment{URL: resp.URL, Filename: filename}, nil
}

// Helper methods

func (c *Client) post(ctx context.Context, path string, body, dest any, requireAuth bool) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req, requireAuth)

	return c.do(req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any, requireAuth bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.authorize(req, requireAuth)

	return c.do(req, dest)
}

func (c *Client) authorize(req *http.Request, requireAuth bool) {
	if requireAuth && c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) do(req *http.Request, dest any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	// Handle error responses
	if resp.StatusCode >= 400 {
		var errResp errorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			return &APIError{Status: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	// Unmarshal success response
	if dest != nil {
		if err := json.Unmarshal(body, dest); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
