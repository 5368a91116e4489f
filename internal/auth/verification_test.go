package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/harborview/civicwatch/internal/auth"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerificationManagerEnrollAndValidate(t *testing.T) {
	store := auth.NewMemorySecretStore()
	vm := auth.NewVerificationManager("CivicWatch", store)
	ctx := context.Background()

	url, png, err := vm.Enroll(ctx, "resident@example.com")
	require.NoError(t, err)
	assert.Contains(t, url, "otpauth://totp/")
	assert.Contains(t, url, "CivicWatch")
	assert.NotEmpty(t, png)

	enrolled, err := vm.Enrolled(ctx, "resident@example.com")
	require.NoError(t, err)
	assert.True(t, enrolled)

	secret, err := store.SecretFor(ctx, "resident@example.com")
	require.NoError(t, err)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	ok, err := vm.Validate(ctx, "resident@example.com", code)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = vm.Validate(ctx, "resident@example.com", "000000")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerificationManagerAbsentCodeIsRejection(t *testing.T) {
	vm := auth.NewVerificationManager("CivicWatch", auth.NewMemorySecretStore())
	ctx := context.Background()

	ok, err := vm.Validate(ctx, "resident@example.com", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerificationManagerUnenrolledNeverValidates(t *testing.T) {
	vm := auth.NewVerificationManager("CivicWatch", auth.NewMemorySecretStore())
	ctx := context.Background()

	enrolled, err := vm.Enrolled(ctx, "stranger@example.com")
	require.NoError(t, err)
	assert.False(t, enrolled)

	ok, err := vm.Validate(ctx, "stranger@example.com", "123456")
	require.NoError(t, err)
	assert.False(t, ok)
}
