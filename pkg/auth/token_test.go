package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	token, tokenHash, err := GenerateToken()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(token, TokenPrefix))
	assert.NoError(t, ValidateTokenFormat(token))
	assert.Equal(t, HashToken(token), tokenHash)
	assert.Len(t, tokenHash, 64)

	// Tokens are unique
	token2, _, err := GenerateToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, token2)
}

func TestValidateTokenFormat(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"valid", "desk_dGVzdHRva2VudGVzdHRva2Vu", false},
		{"wrong prefix", "sess_dGVzdHRva2Vu", true},
		{"no prefix", "dGVzdHRva2Vu", true},
		{"empty payload", "desk_", true},
		{"invalid base64url", "desk_!!!!", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTokenFormat(tt.token)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
