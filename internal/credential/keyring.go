// Package credential stores the mailbox password in the system keyring.
package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "belegmail"

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/belegmail/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("belegmail-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves the password stored for account. A missing entry is a
// normal condition, reported via IsNotFound, not a failure.
func Get(account string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(account)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", account, err)
	}

	return string(item.Data), nil
}

// Set stores the password for account in the system keyring.
func Set(account, password string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:  account,
		Data: []byte(password),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", account, err)
	}

	return nil
}

// Delete removes the stored password for account.
func Delete(account string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Remove(account)
	if err != nil {
		return fmt.Errorf("deleting credential %q: %w", account, err)
	}

	return nil
}

// IsNotFound reports whether err means no password is stored.
func IsNotFound(err error) bool {
	return errors.Is(err, keyring.ErrKeyNotFound)
}
