package auth

import (
	"context"
	"net/http"
)

// Identity is the authenticated principal a request acts on behalf of.
type Identity struct {
	Subject string
}

type Engine interface {

	// AuthenticateRequest inspects the given HTTP request for valid
	// authentication credentials. If valid, it returns the identity the
	// credentials belong to; otherwise, it returns nil. An error is returned
	// if there was an issue processing the authentication.
	AuthenticateRequest(ctx context.Context, rq *http.Request) (*Identity, error)
}
