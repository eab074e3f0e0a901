package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/keyshop-backend/pkg/security"
)

func TestOperatorKeyGenerateProducesVerifiableHash(t *testing.T) {
	cmd := operatorKeyCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"generate", "--length", "24", "--memory-kb", "1024"})

	require.NoError(t, cmd.Execute())

	var got map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Len(t, got["key"], 24)
	ok, err := security.VerifyOperatorKey(got["key"], got["hash"])
	require.NoError(t, err)
	require.True(t, ok)
}

func TestOperatorKeyHashReadsStdin(t *testing.T) {
	cmd := operatorKeyCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetIn(strings.NewReader("s3cret-operator-key\n"))
	cmd.SetArgs([]string{"hash", "--memory-kb", "1024"})

	require.NoError(t, cmd.Execute())

	ok, err := security.VerifyOperatorKey("s3cret-operator-key", strings.TrimSpace(out.String()))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestOperatorKeyHashRejectsEmptyInput(t *testing.T) {
	cmd := operatorKeyCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader("\n"))
	cmd.SetArgs([]string{"hash"})

	require.Error(t, cmd.Execute())
}
