package servicegeek

import "context"

// CurrentUser is returned by GET /auth/me.
type CurrentUser struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// Me returns the user the client's bearer token belongs to.
func (c *Client) Me(ctx context.Context) (*CurrentUser, error) {
	var out CurrentUser
	if err := c.get(ctx, "/auth/me", &out); err != nil {
		return nil, err
	}
	return &out, nil
}
