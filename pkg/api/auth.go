package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ignatij/ingestctl/pkg/storage"
	"github.com/pkg/errors"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        User   `json:"user"`
}

// Login authenticates and caches the token and user in the store.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResponse, error) {
	if username == "" || password == "" {
		return LoginResponse{}, errors.New("username and password are required")
	}
	var resp LoginResponse
	if err := c.call(ctx, http.MethodPost, "/auth/login", nil, LoginRequest{Username: username, Password: password}, &resp, false); err != nil {
		return LoginResponse{}, err
	}
	if resp.AccessToken == "" {
		return LoginResponse{}, errors.New("login response carried no access token")
	}
	if c.store == nil {
		return resp, nil
	}
	user, err := json.Marshal(resp.User)
	if err != nil {
		return LoginResponse{}, errors.Wrap(err, "encode user")
	}
	if err := c.store.Set(storage.AuthTokenKey, resp.AccessToken); err != nil {
		return LoginResponse{}, errors.Wrap(err, "cache auth token")
	}
	if err := c.store.Set(storage.UserKey, string(user)); err != nil {
		return LoginResponse{}, errors.Wrap(err, "cache user")
	}
	return resp, nil
}

// Logout forgets the cached credential.
func (c *Client) Logout() error {
	if c.store == nil {
		return nil
	}
	return c.store.Delete(storage.AuthTokenKey, storage.UserKey)
}

// CurrentUser returns the user cached by the last Login.
func (c *Client) CurrentUser() (User, error) {
	if c.store == nil {
		return User{}, ErrNoToken
	}
	raw, err := c.store.Get(storage.UserKey)
	if err != nil {
		return User{}, ErrNoToken
	}
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return User{}, errors.Wrap(err, "decode cached user")
	}
	return u, nil
}
