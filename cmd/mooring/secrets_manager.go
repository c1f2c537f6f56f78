// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package main provides SecretsManager for deployment credentials.

All credential material for a run comes from the process environment
(optionally primed from a .env file) and is read exactly once, at
construction. Values are sealed into memguard enclaves immediately and
only decrypted for the moment they are used.

# Security Context

  - Secret values are never logged, at any level. Access events record
    the secret name only.
  - The registry credential leaves the manager only as an engine auth
    header; the SSH key leaves it only through a scoped callback whose
    backing buffer is wiped when the callback returns.
  - The deploy host is treated as sensitive: it is handed out in a
    DeploymentTarget and redacted by the log sanitizer, never persisted.

# Lifecycle

Construct once at startup, Destroy on exit. Destroy purges the secure
memory session, so the manager cannot be reused afterwards.
*/
package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/joho/godotenv"

	"github.com/AleutianAI/mooring/cmd/mooring/config"
	"github.com/AleutianAI/mooring/pkg/logging"
)

// -----------------------------------------------------------------------------
// Error Sentinel Values
// -----------------------------------------------------------------------------

// ErrSecretNotFound is returned when a required secret is not set. The
// error names the environment variable to set.
var ErrSecretNotFound = errors.New("secret not found")

// ErrSecretInvalid is returned when a secret is present but unusable,
// for example a registry user without its token.
var ErrSecretInvalid = errors.New("secret invalid")

// ErrSecretsDestroyed is returned when the manager is used after
// Destroy.
var ErrSecretsDestroyed = errors.New("secrets manager destroyed")

// -----------------------------------------------------------------------------
// Well-Known Secret Names
// -----------------------------------------------------------------------------

const (
	// SecretRegistryUser is the registry username for image pulls.
	SecretRegistryUser = "MOORING_REGISTRY_USER"

	// SecretRegistryToken is the registry token or password paired with
	// SecretRegistryUser.
	SecretRegistryToken = "MOORING_REGISTRY_TOKEN"

	// SecretSSHKeyPath is the path to the private key used for remote
	// deployment. The file content is read once at startup.
	SecretSSHKeyPath = "MOORING_SSH_KEY"

	// SecretSSHPassphrase is the optional passphrase for the private
	// key named by SecretSSHKeyPath.
	SecretSSHPassphrase = "MOORING_SSH_PASSPHRASE"

	// SecretDeployHost is the address of the deployment target host.
	SecretDeployHost = "MOORING_DEPLOY_HOST"

	// SecretDeployUser is the login user on the deployment target.
	SecretDeployUser = "MOORING_DEPLOY_USER"

	// SecretRemoteDir is the directory on the deployment target that
	// holds the stack file.
	SecretRemoteDir = "MOORING_REMOTE_DIR"
)

// KnownSecrets lists every environment variable the manager reads.
var KnownSecrets = []string{
	SecretRegistryUser,
	SecretRegistryToken,
	SecretSSHKeyPath,
	SecretSSHPassphrase,
	SecretDeployHost,
	SecretDeployUser,
	SecretRemoteDir,
}

// memguardInitOnce ensures secure memory initialization happens only once.
var memguardInitOnce sync.Once

// initSecureMemory arms memguard's interrupt handler so secrets are
// wiped even when the process is signalled.
func initSecureMemory() {
	memguardInitOnce.Do(memguard.CatchInterrupt)
}

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// SecretsManager hands out deployment credentials without exposing
// where or how they are stored.
//
// # Security
//
//   - Values are never logged, even at debug level
//   - Access events are recorded by secret name only
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type SecretsManager interface {
	// RegistryAuth builds the engine auth header for the given registry.
	//
	// # Inputs
	//
	//   - registry: Registry host the image will be pulled from
	//
	// # Outputs
	//
	//   - string: Base64 auth payload, empty for anonymous pulls
	//   - error: ErrSecretInvalid when the credential pair is unusable
	RegistryAuth(registry string) (string, error)

	// WithSSHKey runs fn with the private key and passphrase bytes.
	// The buffers backing both arguments are wiped when fn returns;
	// fn must not retain them.
	//
	// # Outputs
	//
	//   - error: ErrSecretNotFound naming MOORING_SSH_KEY when no key
	//     is configured, otherwise fn's error
	WithSSHKey(fn func(key, passphrase []byte) error) error

	// DeployTarget assembles the remote deployment target from the
	// environment. Returns ErrSecretNotFound naming the missing
	// variable when the host or user is unset.
	DeployTarget() (config.DeploymentTarget, error)

	// Destroy wipes all secret material. The manager cannot be used
	// afterwards.
	Destroy()
}

// -----------------------------------------------------------------------------
// Implementation Struct
// -----------------------------------------------------------------------------

// EnvSecretsManager implements SecretsManager over the process
// environment.
//
// # Description
//
// Every variable in KnownSecrets is read exactly once, at construction.
// Sensitive values are sealed into memguard enclaves; they live
// encrypted in memory and are only decrypted into locked buffers for
// the duration of a single use. A nil enclave means the variable was
// not set.
//
// # Thread Safety
//
// EnvSecretsManager is safe for concurrent use.
type EnvSecretsManager struct {
	registryUser  *memguard.Enclave
	registryToken *memguard.Enclave
	sshKey        *memguard.Enclave
	sshPassphrase *memguard.Enclave
	target        config.DeploymentTarget
	logger        *logging.Logger
	destroyed     bool
	mu            sync.Mutex
}

// -----------------------------------------------------------------------------
// Constructors
// -----------------------------------------------------------------------------

// NewEnvSecretsManager reads deployment credentials from the process
// environment.
//
// # Description
//
// Loads a .env file from the working directory when one exists, then
// reads every variable in KnownSecrets once. The private key file named
// by MOORING_SSH_KEY is read here too, so a key deleted or rotated
// mid-run cannot change the credentials the run started with.
//
// # Inputs
//
//   - logger: Structured logger for access events (required)
//
// # Outputs
//
//   - *EnvSecretsManager: Ready-to-use manager
//   - error: ErrSecretInvalid for a half-configured credential pair, or
//     a wrapped read error for an unreadable key file
//
// # Examples
//
//	secrets, err := NewEnvSecretsManager(logger)
//	if err != nil {
//	    return err
//	}
//	defer secrets.Destroy()
func NewEnvSecretsManager(logger *logging.Logger) (*EnvSecretsManager, error) {
	// Missing .env is the normal case; variables may come from the shell.
	_ = godotenv.Load()
	return newSecretsManagerFromEnv(os.Getenv, logger)
}

// newSecretsManagerFromEnv is the injection seam for tests.
func newSecretsManagerFromEnv(getenv func(string) string, logger *logging.Logger) (*EnvSecretsManager, error) {
	if logger == nil {
		return nil, fmt.Errorf("%w: Logger", ErrNilDependency)
	}
	initSecureMemory()

	m := &EnvSecretsManager{logger: logger}

	user := getenv(SecretRegistryUser)
	token := getenv(SecretRegistryToken)
	if (user == "") != (token == "") {
		return nil, fmt.Errorf("%w: %s and %s must be set together",
			ErrSecretInvalid, SecretRegistryUser, SecretRegistryToken)
	}
	if user != "" {
		m.registryUser = memguard.NewEnclave([]byte(user))
		m.registryToken = memguard.NewEnclave([]byte(token))
	}

	keyPath := getenv(SecretSSHKeyPath)
	if keyPath != "" {
		keyData, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("read %s %q: %w", SecretSSHKeyPath, keyPath, err)
		}
		m.sshKey = memguard.NewEnclave(keyData)
	}
	if pass := getenv(SecretSSHPassphrase); pass != "" {
		m.sshPassphrase = memguard.NewEnclave([]byte(pass))
	}

	m.target = config.DeploymentTarget{
		Host:      getenv(SecretDeployHost),
		User:      getenv(SecretDeployUser),
		KeyPath:   keyPath,
		RemoteDir: getenv(SecretRemoteDir),
	}

	logger.Debug("secrets loaded",
		"registry_auth", m.registryUser != nil,
		"ssh_key", m.sshKey != nil,
		"deploy_host", m.target.Host != "",
	)
	return m, nil
}

// -----------------------------------------------------------------------------
// Interface Implementation Methods
// -----------------------------------------------------------------------------

// registryAuthPayload is the engine's expected auth header shape.
type registryAuthPayload struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	ServerAddress string `json:"serveraddress"`
}

// RegistryAuth implements SecretsManager.
func (m *EnvSecretsManager) RegistryAuth(registry string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return "", ErrSecretsDestroyed
	}
	if m.registryUser == nil {
		// Anonymous pull; public images need no credential.
		return "", nil
	}

	userBuf, err := m.registryUser.Open()
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", ErrSecretInvalid, SecretRegistryUser, err)
	}
	defer userBuf.Destroy()

	tokenBuf, err := m.registryToken.Open()
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", ErrSecretInvalid, SecretRegistryToken, err)
	}
	defer tokenBuf.Destroy()

	payload, err := json.Marshal(registryAuthPayload{
		Username:      userBuf.String(),
		Password:      tokenBuf.String(),
		ServerAddress: registry,
	})
	if err != nil {
		return "", fmt.Errorf("encode registry auth: %w", err)
	}

	m.recordAccess(SecretRegistryToken, true)
	return base64.URLEncoding.EncodeToString(payload), nil
}

// WithSSHKey implements SecretsManager.
func (m *EnvSecretsManager) WithSSHKey(fn func(key, passphrase []byte) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return ErrSecretsDestroyed
	}
	if m.sshKey == nil {
		return fmt.Errorf("%w: %s", ErrSecretNotFound, SecretSSHKeyPath)
	}

	keyBuf, err := m.sshKey.Open()
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrSecretInvalid, SecretSSHKeyPath, err)
	}
	defer keyBuf.Destroy()

	var passphrase []byte
	if m.sshPassphrase != nil {
		passBuf, perr := m.sshPassphrase.Open()
		if perr != nil {
			return fmt.Errorf("%w: open %s: %v", ErrSecretInvalid, SecretSSHPassphrase, perr)
		}
		defer passBuf.Destroy()
		passphrase = passBuf.Bytes()
	}

	m.recordAccess(SecretSSHKeyPath, true)
	return fn(keyBuf.Bytes(), passphrase)
}

// DeployTarget implements SecretsManager.
func (m *EnvSecretsManager) DeployTarget() (config.DeploymentTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return config.DeploymentTarget{}, ErrSecretsDestroyed
	}
	if m.target.Host == "" {
		return config.DeploymentTarget{}, fmt.Errorf("%w: %s", ErrSecretNotFound, SecretDeployHost)
	}
	if m.target.User == "" {
		return config.DeploymentTarget{}, fmt.Errorf("%w: %s", ErrSecretNotFound, SecretDeployUser)
	}
	return m.target, nil
}

// Destroy implements SecretsManager.
//
// Purges the process-wide secure memory session, so every enclave in
// the process becomes unreadable. Call it once, on exit.
func (m *EnvSecretsManager) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return
	}
	m.destroyed = true
	m.registryUser = nil
	m.registryToken = nil
	m.sshKey = nil
	m.sshPassphrase = nil
	memguard.Purge()
}

// -----------------------------------------------------------------------------
// Setup Help
// -----------------------------------------------------------------------------

// GetSetupInstructions returns setup help for a missing secret.
//
// # Examples
//
//	_, err := secrets.DeployTarget()
//	if errors.Is(err, ErrSecretNotFound) {
//	    fmt.Println(secrets.GetSetupInstructions(SecretDeployHost))
//	}
func (m *EnvSecretsManager) GetSetupInstructions(name string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s is not set.\n\n", name))
	sb.WriteString("Option 1: Environment variable\n")
	sb.WriteString(fmt.Sprintf("  export %s=\"value\"\n\n", name))
	sb.WriteString("Option 2: .env file in the working directory\n")
	sb.WriteString(fmt.Sprintf("  %s=value\n", name))
	m.appendSecretFormatHint(&sb, name)
	return sb.String()
}

// appendSecretFormatHint adds format hints for known secrets.
func (m *EnvSecretsManager) appendSecretFormatHint(sb *strings.Builder, name string) {
	switch name {
	case SecretSSHKeyPath:
		sb.WriteString("\nNote: set the PATH to a private key file, not the key itself\n")
	case SecretRegistryUser, SecretRegistryToken:
		sb.WriteString(fmt.Sprintf("\nNote: %s and %s must be set together\n",
			SecretRegistryUser, SecretRegistryToken))
	}
}

// recordAccess records a secret access event. Name only, never the value.
func (m *EnvSecretsManager) recordAccess(name string, found bool) {
	m.logger.Debug("secret access", "name", name, "found", found)
}

// -----------------------------------------------------------------------------
// Mock Implementation
// -----------------------------------------------------------------------------

// MockSecretsManager implements SecretsManager for testing.
//
// # Examples
//
//	mock := &MockSecretsManager{
//	    RegistryAuthFunc: func(registry string) (string, error) {
//	        return "", ErrSecretInvalid
//	    },
//	}
type MockSecretsManager struct {
	// RegistryAuthFunc is called when RegistryAuth is invoked.
	RegistryAuthFunc func(registry string) (string, error)

	// WithSSHKeyFunc is called when WithSSHKey is invoked.
	WithSSHKeyFunc func(fn func(key, passphrase []byte) error) error

	// DeployTargetFunc is called when DeployTarget is invoked.
	DeployTargetFunc func() (config.DeploymentTarget, error)

	// RegistryAuthCalls records all RegistryAuth invocations.
	RegistryAuthCalls []string

	// WithSSHKeyCalls counts WithSSHKey invocations.
	WithSSHKeyCalls int

	// DeployTargetCalls counts DeployTarget invocations.
	DeployTargetCalls int

	// DestroyCalls counts Destroy invocations.
	DestroyCalls int

	// mu protects call tracking.
	mu sync.Mutex
}

// RegistryAuth implements SecretsManager.
func (m *MockSecretsManager) RegistryAuth(registry string) (string, error) {
	m.mu.Lock()
	m.RegistryAuthCalls = append(m.RegistryAuthCalls, registry)
	m.mu.Unlock()

	if m.RegistryAuthFunc != nil {
		return m.RegistryAuthFunc(registry)
	}
	return "", nil
}

// WithSSHKey implements SecretsManager.
func (m *MockSecretsManager) WithSSHKey(fn func(key, passphrase []byte) error) error {
	m.mu.Lock()
	m.WithSSHKeyCalls++
	m.mu.Unlock()

	if m.WithSSHKeyFunc != nil {
		return m.WithSSHKeyFunc(fn)
	}
	return fn([]byte("mock-ssh-key"), nil)
}

// DeployTarget implements SecretsManager.
func (m *MockSecretsManager) DeployTarget() (config.DeploymentTarget, error) {
	m.mu.Lock()
	m.DeployTargetCalls++
	m.mu.Unlock()

	if m.DeployTargetFunc != nil {
		return m.DeployTargetFunc()
	}
	return config.DeploymentTarget{
		Host:      "mock-host",
		User:      "mock-user",
		Port:      22,
		RemoteDir: "/opt/mooring",
	}, nil
}

// Destroy implements SecretsManager.
func (m *MockSecretsManager) Destroy() {
	m.mu.Lock()
	m.DestroyCalls++
	m.mu.Unlock()
}

// -----------------------------------------------------------------------------
// Compile-time Interface Checks
// -----------------------------------------------------------------------------

var _ SecretsManager = (*EnvSecretsManager)(nil)
var _ SecretsManager = (*MockSecretsManager)(nil)
