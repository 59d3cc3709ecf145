// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

package secrets

// DefaultService is the keyring service name used by the docrag CLI when
// none is given in a keyring:// URI.
const DefaultService = "docrag"

// Store provides secure secret storage for API keys and other credentials.
// Implementations may use OS keyrings, encrypted files, or other backends.
type Store interface {
	// Store saves a secret value under the given service and key.
	Store(service, key, value string) error

	// Retrieve fetches the secret value for the given service and key.
	// Returns CodeSecretNotFound (via errors.HasCode) if the key does not exist.
	Retrieve(service, key string) (string, error)

	// Delete removes the secret for the given service and key.
	// Returns CodeSecretNotFound (via errors.HasCode) if the key does not exist.
	Delete(service, key string) error

	// List returns all key names stored under the given service.
	List(service string) ([]string, error)
}
