package github

import (
	gogithub "github.com/google/go-github/v60/github"
)

// Hosts hands out a Host per credential. Requests without a user token use
// the configured default client (an app installation, a service token, or
// anonymous access).
type Hosts struct {
	base    *Host
	opts    HostOptions
	baseURL string
}

// NewHosts creates a Hosts whose default credential is client, identified
// by key in the rate limit budget.
func NewHosts(client *gogithub.Client, key string, opts HostOptions) *Hosts {
	if opts.Budget == nil {
		opts.Budget = NewLocalBudget()
	}
	return &Hosts{
		base:    NewHost(client, key, opts),
		opts:    opts,
		baseURL: client.BaseURL.String(),
	}
}

// Default returns the Host for the default credential.
func (h *Hosts) Default() *Host {
	return h.base
}

// For returns a Host authenticated with token, or the default Host when
// token is empty. Hosts sharing a token share a budget key.
func (h *Hosts) For(token string) *Host {
	if token == "" {
		return h.base
	}
	client := NewTokenClient(token)
	if u, err := client.BaseURL.Parse(h.baseURL); err == nil {
		client.BaseURL = u
	}
	return NewHost(client, CredentialKey(token), h.opts)
}
