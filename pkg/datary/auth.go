// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datary

import (
	"context"
	"net/http"
	"net/url"
)

// SignIn exchanges credentials for a session token.
//
// Description:
//
//	Posts the credentials to connection/signIn and reads the token from the
//	X-Set-Token response header. On success the token is stored on the
//	client and sent on every later call.
//
// Inputs:
//
//	ctx - Context for the request.
//	username - Datary username.
//	password - Datary password. Not logged.
//
// Outputs:
//
//	string - The session token.
//	error - *RequestError on transport failure, ErrNotAuthenticated when the
//	        backend answers without a token.
func (c *Client) SignIn(ctx context.Context, username, password string) (string, error) {
	c.token = ""
	resp, err := c.send(ctx, request{
		op:       "signIn",
		method:   http.MethodPost,
		endpoint: "connection/signIn",
		form:     url.Values{"username": {username}, "password": {password}},
	})
	if err != nil {
		c.logger.Error("sign in failed", "username", username, "error", err)
		return "", err
	}

	token := resp.header.Get(TokenHeader)
	if token == "" {
		return "", ErrNotAuthenticated
	}
	c.token = token
	c.logger.Info("signed in", "username", username)
	return token, nil
}

// SignOut ends the session. The token is cleared only when the backend
// confirms.
func (c *Client) SignOut(ctx context.Context) error {
	_, err := c.send(ctx, request{op: "signOut", method: http.MethodGet, endpoint: "connection/signOut"})
	if err != nil {
		c.logger.Error("sign out failed", "error", err)
		return err
	}
	c.token = ""
	c.logger.Info("signed out")
	return nil
}
