package oidc

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsecureVerifierReadsClaims(t *testing.T) {
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"clerk-7","email":"clerk@example.com"}`))
	tok, err := NewInsecureVerifier().Verify(context.Background(), "e30."+payload+".sig")
	require.NoError(t, err)

	var claims map[string]interface{}
	require.NoError(t, tok.Claims(&claims))
	require.Equal(t, "clerk-7", claims["sub"])
}

func TestInsecureVerifierRejectsGarbage(t *testing.T) {
	v := NewInsecureVerifier()
	_, err := v.Verify(context.Background(), "not-a-jwt")
	require.Error(t, err)
	_, err = v.Verify(context.Background(), "e30.%%%.sig")
	require.Error(t, err)
}
