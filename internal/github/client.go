package github

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	gogithub "github.com/google/go-github/v60/github"
)

// NewTokenClient returns a client for a personal access token. An empty
// token gives an anonymous client limited to public repositories and the
// unauthenticated rate limit.
func NewTokenClient(token string) *gogithub.Client {
	client := gogithub.NewClient(nil)
	if token == "" {
		return client
	}
	return client.WithAuthToken(token)
}

// NewAppClient returns a client that authenticates as a GitHub App
// installation, which can read the private repositories the app is
// installed on. The key is PEM, base64-encoded PEM, or read from keyPath
// when key is empty.
func NewAppClient(appID, installationID int64, key []byte, keyPath string) (*gogithub.Client, error) {
	pem, err := loadPrivateKey(key, keyPath)
	if err != nil {
		return nil, err
	}
	transport, err := ghinstallation.New(http.DefaultTransport, appID, installationID, pem)
	if err != nil {
		return nil, fmt.Errorf("creating app installation transport: %w", err)
	}
	return gogithub.NewClient(&http.Client{Transport: transport}), nil
}

func loadPrivateKey(key []byte, keyPath string) ([]byte, error) {
	s := strings.TrimSpace(string(key))
	switch {
	case strings.HasPrefix(s, "-----BEGIN"):
		return []byte(s), nil
	case s != "":
		// Keys passed through environment variables are usually base64.
		for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding} {
			if pem, err := enc.DecodeString(s); err == nil {
				return pem, nil
			}
		}
		return nil, errors.New("github private key is neither PEM nor base64")
	case keyPath != "":
		pem, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("reading github private key: %w", err)
		}
		return pem, nil
	default:
		return nil, errors.New("github app auth needs private_key or private_key_path")
	}
}
