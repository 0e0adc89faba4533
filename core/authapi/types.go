package authapi

import "github.com/dmitrymomot/sessionkit/core/session"

type loginRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

type loginPayload struct {
	Token string           `json:"token"`
	User  loginUserPayload `json:"user"`

	// Exp is the token expiry in unix seconds, when the login payload
	// carries one.
	Exp int64 `json:"exp,omitempty"`

	Subscription *session.Subscription `json:"subscription,omitempty"`
}

// loginUserPayload keeps active as a pointer so a server that omits the
// field is not mistaken for reporting an inactive account.
type loginUserPayload struct {
	ID              string                `json:"id"`
	DisplayName     string                `json:"displayName"`
	Email           string                `json:"email"`
	Roles           []string              `json:"roles"`
	Active          *bool                 `json:"active,omitempty"`
	CanUseAPI       bool                  `json:"canUseApi"`
	CanBatchProcess bool                  `json:"canBatchProcess"`
	Subscription    *session.Subscription `json:"subscription,omitempty"`
}

// authorizePayload uses pointers for fields the endpoint may omit, so
// the merge layer can tell "omitted" from "explicitly false".
type authorizePayload struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Active      *bool    `json:"active,omitempty"`

	CanUseAPI       *bool                 `json:"canUseApi,omitempty"`
	CanBatchProcess *bool                 `json:"canBatchProcess,omitempty"`
	Subscription    *session.Subscription `json:"subscription,omitempty"`

	Exp int64 `json:"exp,omitempty"`
}
