package testutil

import (
	"net/http"
)

// BearerToken sets the Authorization header, as a client of the /v1 routes would.
func BearerToken(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}
