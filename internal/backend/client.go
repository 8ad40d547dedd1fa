// Package backend talks to the hosted investments API: auth, holding CRUD
// and bulk save.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/STTM-NSU/investracker/internal/config"
	"github.com/STTM-NSU/investracker/internal/holdings"
	"github.com/STTM-NSU/investracker/internal/logger"
	"github.com/STTM-NSU/investracker/internal/model"
	"resty.dev/v3"
)

const (
	_loginURL       = "/auth/login"
	_registerURL    = "/auth/register"
	_investmentsURL = "/investments"
	_investmentURL  = "/investments/{id}"
	_bulkURL        = "/investments/bulk"
)

var ErrUnauthorized = errors.New("unauthorized")

type errorResponse struct {
	Message string `json:"message"`
}

type Client struct {
	c      *resty.Client
	logger logger.Logger

	mu    sync.RWMutex
	token string
	user  model.User
}

func NewClient(cfg config.BackendConfig, logger logger.Logger) *Client {
	client := resty.New().
		SetLogger(logger).
		SetBaseURL(cfg.Address).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")

	return &Client{
		c:      client,
		logger: logger,
	}
}

func (c *Client) Login(ctx context.Context, email, password string) (model.User, error) {
	return c.authenticate(ctx, _loginURL, model.Credentials{Email: email, Password: password})
}

func (c *Client) Register(ctx context.Context, name, email, password string) (model.User, error) {
	return c.authenticate(ctx, _registerURL, model.Credentials{Name: name, Email: email, Password: password})
}

// SetToken reuses a session token obtained elsewhere.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token is the current session token, empty before login or after a 401.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) User() model.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

func (c *Client) authenticate(ctx context.Context, url string, creds model.Credentials) (model.User, error) {
	resp, err := c.c.R().
		SetContext(ctx).
		SetBody(creds).
		SetResult(&model.AuthResponse{}).
		SetError(&errorResponse{}).
		Post(url)
	if err != nil {
		return model.User{}, fmt.Errorf("%w: can't send auth request", err)
	}
	defer resp.Body.Close()

	if err := c.checkResponse(resp); err != nil {
		return model.User{}, err
	}

	auth := resp.Result().(*model.AuthResponse)
	if auth.Token == "" {
		return model.User{}, fmt.Errorf("empty token in auth response")
	}

	c.mu.Lock()
	c.token = auth.Token
	c.user = auth.User
	c.mu.Unlock()

	c.logger.Infof("authenticated as %s", auth.User.Email)
	return auth.User, nil
}

func (c *Client) request(ctx context.Context) *resty.Request {
	req := c.c.R().
		SetContext(ctx).
		SetError(&errorResponse{})

	c.mu.RLock()
	if c.token != "" {
		req.SetAuthToken(c.token)
	}
	c.mu.RUnlock()

	return req
}

// checkResponse maps error statuses. A 401 drops the session like the web
// client did.
func (c *Client) checkResponse(resp *resty.Response) error {
	c.logger.Debugf("got response %s status: %s, %s", resp.Request.URL, resp.Status(), resp.Duration())

	if resp.StatusCode() == http.StatusUnauthorized {
		c.mu.Lock()
		c.token = ""
		c.user = model.User{}
		c.mu.Unlock()
		return ErrUnauthorized
	}
	if resp.StatusCode() == http.StatusNotFound {
		return holdings.ErrHoldingNotFound
	}
	if resp.IsError() {
		if e, ok := resp.Error().(*errorResponse); ok && e.Message != "" {
			return fmt.Errorf("%s: backend request error %s", e.Message, resp.Status())
		}
		return fmt.Errorf("backend request error: %s", resp.Status())
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("backend unexpected request error: %s", resp.Status())
	}
	return nil
}

func (c *Client) List(ctx context.Context) ([]model.Holding, error) {
	var hs []model.Holding
	resp, err := c.request(ctx).SetResult(&hs).Get(_investmentsURL)
	if err != nil {
		return nil, fmt.Errorf("%w: can't load investments", err)
	}
	defer resp.Body.Close()

	if err := c.checkResponse(resp); err != nil {
		return nil, err
	}
	return hs, nil
}

// Get filters the full list; the API has no single-item read.
func (c *Client) Get(ctx context.Context, id string) (model.Holding, error) {
	hs, err := c.List(ctx)
	if err != nil {
		return model.Holding{}, err
	}
	for _, h := range hs {
		if h.ID == id {
			return h, nil
		}
	}
	return model.Holding{}, holdings.ErrHoldingNotFound
}

func (c *Client) Create(ctx context.Context, h model.Holding) (model.Holding, error) {
	var created model.Holding
	resp, err := c.request(ctx).SetBody(h).SetResult(&created).Post(_investmentsURL)
	if err != nil {
		return model.Holding{}, fmt.Errorf("%w: can't add investment", err)
	}
	defer resp.Body.Close()

	if err := c.checkResponse(resp); err != nil {
		return model.Holding{}, err
	}
	if created.ID == "" {
		return h, nil
	}
	return created, nil
}

func (c *Client) Update(ctx context.Context, h model.Holding) (model.Holding, error) {
	var updated model.Holding
	resp, err := c.request(ctx).
		SetPathParam("id", h.ID).
		SetBody(h).
		SetResult(&updated).
		Put(_investmentURL)
	if err != nil {
		return model.Holding{}, fmt.Errorf("%w: can't update investment", err)
	}
	defer resp.Body.Close()

	if err := c.checkResponse(resp); err != nil {
		return model.Holding{}, err
	}
	if updated.ID == "" {
		return h, nil
	}
	return updated, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	resp, err := c.request(ctx).SetPathParam("id", id).Delete(_investmentURL)
	if err != nil {
		return fmt.Errorf("%w: can't delete investment", err)
	}
	defer resp.Body.Close()

	return c.checkResponse(resp)
}

func (c *Client) SaveAll(ctx context.Context, hs []model.Holding) error {
	if hs == nil {
		hs = []model.Holding{}
	}
	resp, err := c.request(ctx).SetBody(hs).Post(_bulkURL)
	if err != nil {
		return fmt.Errorf("%w: can't save investments", err)
	}
	defer resp.Body.Close()

	return c.checkResponse(resp)
}

var _ holdings.Store = (*Client)(nil)
