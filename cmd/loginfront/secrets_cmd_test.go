package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestSecretsLifecycle(t *testing.T) {
	keyring.MockInit()

	stdout, _, err := runCommand(t, "secrets", "set", "admin-password", "correct-horse")
	require.NoError(t, err)
	assert.Contains(t, stdout, "${keyring:admin-password}")

	stdout, _, err = runCommand(t, "secrets", "get", "admin-password")
	require.NoError(t, err)
	assert.NotContains(t, stdout, "correct-horse")

	stdout, _, err = runCommand(t, "secrets", "get", "admin-password", "--reveal")
	require.NoError(t, err)
	assert.Equal(t, "correct-horse\n", stdout)

	_, _, err = runCommand(t, "secrets", "delete", "admin-password")
	require.NoError(t, err)

	_, _, err = runCommand(t, "secrets", "get", "admin-password")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin-password")
}

func TestSecretsSetFromEnv(t *testing.T) {
	keyring.MockInit()
	t.Setenv("VAULT_ROOT_TOKEN", "hvs.from-env")

	_, _, err := runCommand(t, "secrets", "set", "vault-token", "--from-env", "VAULT_ROOT_TOKEN")
	require.NoError(t, err)

	got, err := keyring.Get("loginfront", "vault-token")
	require.NoError(t, err)
	assert.Equal(t, "hvs.from-env", got)

	_, _, err = runCommand(t, "secrets", "set", "vault-token", "--from-env", "UNSET_VARIABLE_FOR_TEST")
	require.Error(t, err)
}

func TestReadSecretValueFromPipe(t *testing.T) {
	v, err := readSecretValue(strings.NewReader("s3cr3t\r\nignored\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", v)

	v, err = readSecretValue(strings.NewReader("no-newline"), nil)
	require.NoError(t, err)
	assert.Equal(t, "no-newline", v)
}
