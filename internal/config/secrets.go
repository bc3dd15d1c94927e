package config

import (
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

// keyringPrefix marks a value stored in the OS keychain: "keyring:<service>/<user>".
const keyringPrefix = "keyring:"

func (c *Config) resolveSecrets() error {
	for _, dst := range []*string{&c.GUIAgent.APIKey, &c.CodeAgent.APIKey} {
		v, err := ResolveSecret(*dst)
		if err != nil {
			return err
		}
		*dst = v
	}
	return nil
}

// ResolveSecret returns value unchanged unless it is a keyring reference,
// in which case the secret is read from the OS keychain.
func ResolveSecret(value string) (string, error) {
	if !strings.HasPrefix(value, keyringPrefix) {
		return value, nil
	}
	ref := strings.TrimPrefix(value, keyringPrefix)
	service, user, ok := strings.Cut(ref, "/")
	if !ok || service == "" || user == "" {
		return "", fmt.Errorf("invalid keyring reference %q (want keyring:<service>/<user>)", value)
	}
	secret, err := keyring.Get(service, user)
	if err != nil {
		return "", fmt.Errorf("keyring %s/%s: %w", service, user, err)
	}
	return secret, nil
}

// StoreSecret saves a secret in the OS keychain and returns its reference.
func StoreSecret(service, user, secret string) (string, error) {
	if err := keyring.Set(service, user, secret); err != nil {
		return "", fmt.Errorf("keyring set: %w", err)
	}
	return keyringPrefix + service + "/" + user, nil
}
