// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

//go:build !windows

package config

import (
	"io/fs"
	"log/slog"
	"os"
	"strings"
)

// secretKeys are the config entries a readable file can leak. A
// keyring:// reference is safe to expose; a literal key is not.
var secretKeys = []string{
	"embedding.api_key",
	"answer.api_key",
	"store.qdrant_api_key",
}

// WarnInsecurePermissions logs a warning when the config file is
// readable by group or world. The check never fails startup: the file
// may carry only keyring:// references, in which case wide permissions
// leak nothing. Operators with literal keys in the file should chmod it
// to 0600 or move the keys into the OS keyring with "docrag secret set".
func WarnInsecurePermissions(path string) {
	if path == "" {
		// Running on defaults and env vars, no file to check.
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		slog.Debug("could not stat config file for permission check", "path", path, "error", err)
		return
	}

	const groupOrWorldRead fs.FileMode = 0o044
	if info.Mode().Perm()&groupOrWorldRead == 0 {
		return
	}

	slog.Warn("config file has insecure permissions; literal api keys in it are readable by other users",
		"path", path,
		"mode", info.Mode(),
		"recommended", "0600",
		"secret_keys", strings.Join(secretKeys, ", "),
		"hint", "docrag secret set stores keys in the OS keyring as keyring:// references")
}
