package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/f1v3nt5/poketroid/internal/models"
)

var errMissingCredentials = errors.New("username and password are required")

// LoginResult is the credential and identity returned by a successful login.
type LoginResult struct {
	Token string
	User  models.SessionUser
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return LoginResult{}, errMissingCredentials
	}

	var out loginWire
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/auth/login",
		body:   credentials{Username: username, Password: password},
	}, &out)
	if err != nil {
		return LoginResult{}, err
	}

	return LoginResult{
		Token: out.Token,
		User: models.SessionUser{
			ID:       out.UserID,
			Username: out.Username,
			Avatar:   deref(out.AvatarURL),
		},
	}, nil
}

// Register creates an account and returns its id.
func (c *Client) Register(ctx context.Context, username, password string) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return 0, errMissingCredentials
	}

	var out registerWire
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/auth/register",
		body:   credentials{Username: username, Password: password},
	}, &out)
	if err != nil {
		return 0, err
	}
	return out.UserID, nil
}
