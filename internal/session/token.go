package session

import (
	"fmt"
	"os"
	"strings"
)

// TokenSource supplies the opaque credential token used for sessions.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a token given directly in configuration.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token() (string, error) {
	return strings.TrimSpace(string(t)), nil
}

// FileToken reads the token from the first non-empty line of a file.
type FileToken string

// Token implements TokenSource.
func (t FileToken) Token() (string, error) {
	data, err := os.ReadFile(string(t))
	if err != nil {
		return "", fmt.Errorf("read session token: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line, nil
		}
	}

	return "", nil
}

// ResolveToken returns the first non-empty token of sources.
// An empty result disables session triggering.
func ResolveToken(sources ...TokenSource) (string, error) {
	for _, src := range sources {
		if src == nil {
			continue
		}
		token, err := src.Token()
		if err != nil {
			return "", err
		}
		if token != "" {
			return token, nil
		}
	}

	return "", nil
}
