// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/bureau-foundation/mapview/lib/config"
	"github.com/bureau-foundation/mapview/lib/sealed"
	"github.com/bureau-foundation/mapview/lib/secret"
)

// readPassword reads the portal password from portal.password_file,
// decrypting it with portal.identity_file when the file is age
// encrypted. Without a password file it prompts on the terminal.
func readPassword(portalConfig config.PortalConfig) (*secret.Buffer, error) {
	path := portalConfig.PasswordFile
	if path == "" || (path == "-" && term.IsTerminal(int(os.Stdin.Fd()))) {
		return promptPassword(portalConfig.Username)
	}
	if path == "-" {
		return secret.ReadFromPath(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading password file: %w", err)
	}
	if !sealed.IsSealed(data) {
		buffer, err := secret.FromTrimmed(data)
		if err != nil {
			return nil, fmt.Errorf("password file %s: %w", path, err)
		}
		return buffer, nil
	}
	secret.Zero(data)

	if portalConfig.IdentityFile == "" {
		return nil, fmt.Errorf("password file %s is encrypted; set portal.identity_file", path)
	}
	decrypted, err := sealed.DecryptFile(path, portalConfig.IdentityFile)
	if err != nil {
		return nil, fmt.Errorf("decrypting password file: %w", err)
	}
	defer decrypted.Close()

	plaintext := make([]byte, decrypted.Len())
	copy(plaintext, decrypted.Bytes())
	buffer, err := secret.FromTrimmed(plaintext)
	if err != nil {
		return nil, fmt.Errorf("password file %s: %w", path, err)
	}
	return buffer, nil
}

func promptPassword(username string) (*secret.Buffer, error) {
	stdinFileDescriptor := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFileDescriptor) {
		return nil, fmt.Errorf("no terminal available for the password prompt (set portal.password_file)")
	}

	fmt.Fprintf(os.Stderr, "Password for %s: ", username)
	passwordBytes, err := term.ReadPassword(stdinFileDescriptor)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}
	return secret.FromTrimmed(passwordBytes)
}
