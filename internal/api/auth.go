package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dsokolov-dev/phantompost/internal/models"
)

// Login performs the signed login write call and assembles a Session from the
// response cookies. The caller persists it to the vault.
func (c *Client) Login(ctx context.Context, username, password string) (*models.Session, error) {
	payload := map[string]any{
		"username":            username,
		"password":            password,
		"login_attempt_count": 0,
	}

	body, header, err := c.do(ctx, LaneWrite, func() (*http.Request, error) {
		return c.buildJSONRequest(ctx, http.MethodPost, "/accounts/login/", payload)
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Status   string `json:"status"`
		LoggedIn struct {
			PK       json.Number `json:"pk"`
			Username string      `json:"username"`
		} `json:"logged_in_user"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode login response: %w", err)
	}

	sess := &models.Session{
		UserID:   parsed.LoggedIn.PK.String(),
		Username: parsed.LoggedIn.Username,
	}

	// credentials arrive as Set-Cookie, not in the JSON body
	for _, cookie := range readSetCookies(header) {
		switch cookie.Name {
		case "sessionid":
			sess.SessionID = cookie.Value
		case "csrftoken":
			sess.CSRFToken = cookie.Value
		case "ds_user_id":
			if sess.UserID == "" {
				sess.UserID = cookie.Value
			}
		}
	}

	if sess.SessionID == "" || sess.CSRFToken == "" {
		return nil, fmt.Errorf("login response carried no session cookies")
	}
	sess.LoggedIn = true
	return sess, nil
}

func readSetCookies(header http.Header) []*http.Cookie {
	resp := http.Response{Header: header}
	return resp.Cookies()
}
