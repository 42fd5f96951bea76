package types

// Credentials is the persisted session material for the scraping account:
// the auth_token and ct0 session cookies plus the bearer token the web
// client sends on every GraphQL request. All three are captured together
// during login and overwritten wholesale on every re-authentication.
type Credentials struct {
	AuthToken   string `json:"auth_token"`
	CSRFToken   string `json:"csrf_token"`
	BearerToken string `json:"bearer_token"`
}

// Complete reports whether all three fields are present. Partial
// credentials are never usable: cookies without the bearer token cannot
// authenticate GraphQL calls.
func (c Credentials) Complete() bool {
	return c.AuthToken != "" && c.CSRFToken != "" && c.BearerToken != ""
}
