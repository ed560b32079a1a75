package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	multisender_http "github.com/sol-hydraulics/multisender/service/http"
)

// Session holds the credentials of API calls.
type Session struct {
	Token string
}

// Client talks to the multisender HTTP API.
type Client struct {
	BaseURL string
	Session Session
	HTTP    *http.Client
}

func NewClient(baseURL string, session Session) *Client {
	return &Client{BaseURL: strings.TrimSuffix(baseURL, "/"), Session: session}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) GetStatus(ctx context.Context, id uuid.UUID) (*multisender_http.ResTransaction, error) {
	res := multisender_http.ResTransaction{}
	if err := c.do(ctx, http.MethodGet, "/transaction/"+id.String(), nil, http.StatusOK, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) CreateDistribution(ctx context.Context, req multisender_http.ReqCreateDistribution) (*multisender_http.ResCreateDistribution, error) {
	res := multisender_http.ResCreateDistribution{}
	if err := c.do(ctx, http.MethodPost, "/distributions", req, http.StatusCreated, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, want int, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Session.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Session.Token)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != want {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	return json.NewDecoder(io.LimitReader(resp.Body, 64<<20)).Decode(out)
}
