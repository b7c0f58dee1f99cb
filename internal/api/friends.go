package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/f1v3nt5/poketroid/internal/models"
)

// Friends lists the signed-in user's friends.
func (c *Client) Friends(ctx context.Context) ([]models.User, error) {
	var out []userWire
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/friends", auth: authRequired}, &out)
	if err != nil {
		return nil, err
	}
	return usersFromWire(out), nil
}

// FriendRequests lists pending invitations in both directions.
func (c *Client) FriendRequests(ctx context.Context) (models.FriendRequests, error) {
	var out requestsWire
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/friends/requests", auth: authRequired}, &out)
	if err != nil {
		return models.FriendRequests{}, err
	}

	result := models.FriendRequests{
		Incoming: make([]models.FriendRequest, 0, len(out.Incoming)),
		Outgoing: make([]models.FriendRequest, 0, len(out.Outgoing)),
	}
	for _, r := range out.Incoming {
		result.Incoming = append(result.Incoming, r.model())
	}
	for _, r := range out.Outgoing {
		result.Outgoing = append(result.Outgoing, r.model())
	}
	return result, nil
}

// SendFriendRequest invites the user to become a friend.
func (c *Client) SendFriendRequest(ctx context.Context, userID int64) error {
	return c.do(ctx, request{method: http.MethodPost, path: "/api/friends/" + id(userID) + "/request", auth: authRequired}, nil)
}

// AcceptFriendRequest accepts the user's pending invitation.
func (c *Client) AcceptFriendRequest(ctx context.Context, userID int64) error {
	return c.do(ctx, request{method: http.MethodPost, path: "/api/friends/requests/" + id(userID) + "/accept", auth: authRequired}, nil)
}

// RejectFriendRequest declines the user's pending invitation.
func (c *Client) RejectFriendRequest(ctx context.Context, userID int64) error {
	return c.do(ctx, request{method: http.MethodPost, path: "/api/friends/requests/" + id(userID) + "/reject", auth: authRequired}, nil)
}

// CancelFriendRequest withdraws an invitation sent to the user.
func (c *Client) CancelFriendRequest(ctx context.Context, userID int64) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/api/friends/requests/" + id(userID), auth: authRequired}, nil)
}

// RemoveFriend ends an accepted friendship.
func (c *Client) RemoveFriend(ctx context.Context, userID int64) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/api/friends/" + id(userID), auth: authRequired}, nil)
}

// FriendStatus returns the raw relationship status with the user.
func (c *Client) FriendStatus(ctx context.Context, userID int64) (string, error) {
	var out statusWire
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/friends/status/" + id(userID), auth: authRequired}, &out)
	if err != nil {
		return "", err
	}
	return out.Status, nil
}

func id(v int64) string {
	return strconv.FormatInt(v, 10)
}
