// Package credential resolves the access token appended to style tile URLs.
package credential

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// DefaultAccessToken is used when no token and no source are configured.
// The remote service rejects it for real traffic; it keeps URLs well-formed in tests and demos.
const DefaultAccessToken = "pk.default-access-token"

var (
	ErrEmptyToken      = errors.New("access token is empty")
	ErrUnknownProvider = errors.New("unknown secret provider")
)

// Source resolves an access token. Resolve may block; implementations
// must honour ctx cancellation where they perform I/O.
type Source interface {
	Resolve(ctx context.Context) (string, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (string, error)

func (f SourceFunc) Resolve(ctx context.Context) (string, error) {
	return f(ctx)
}

type staticSource string

// Static returns a Source that always yields token.
func Static(token string) Source {
	return staticSource(token)
}

func (s staticSource) Resolve(_ context.Context) (string, error) {
	if s == "" {
		return "", ErrEmptyToken
	}
	return string(s), nil
}

type envSource string

// Env reads the token from the named environment variable at resolve time.
func Env(name string) Source {
	return envSource(name)
}

func (s envSource) Resolve(_ context.Context) (string, error) {
	v, ok := os.LookupEnv(string(s))
	if !ok {
		return "", fmt.Errorf("environment variable %q is not set", string(s))
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("environment variable %q: %w", string(s), ErrEmptyToken)
	}
	return v, nil
}

type fileSource string

// File reads the token from a file, trimming surrounding whitespace.
func File(path string) Source {
	return fileSource(path)
}

func (s fileSource) Resolve(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b, err := os.ReadFile(string(s))
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	v := strings.TrimSpace(string(b))
	if v == "" {
		return "", fmt.Errorf("token file %q: %w", string(s), ErrEmptyToken)
	}
	return v, nil
}

// Ref parses a reference of the form
//
//	secretref:<provider>:<ref>
//
// where provider is one of env, file or static. Values without the prefix
// are treated as literal tokens.
func Ref(value string) (Source, error) {
	provider, ref, ok := ParseSecretRef(value)
	if !ok {
		if strings.HasPrefix(value, secretRefPrefix) {
			return nil, fmt.Errorf("malformed secret reference %q", value)
		}
		return Static(value), nil
	}

	switch provider {
	case "env":
		return Env(ref), nil
	case "file":
		return File(ref), nil
	case "static":
		return Static(ref), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
}

const secretRefPrefix = "secretref:"

// ParseSecretRef splits a secretref value into provider and ref.
func ParseSecretRef(value string) (provider string, ref string, ok bool) {
	if !strings.HasPrefix(value, secretRefPrefix) {
		return "", "", false
	}
	parts := strings.SplitN(strings.TrimPrefix(value, secretRefPrefix), ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
