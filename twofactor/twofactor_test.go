package twofactor

import (
	"bytes"
	"crypto/rand"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var backupShape = regexp.MustCompile(`^[0-9A-F]{8}$`)

func testTOTP() *TOTP {
	return NewTOTP(Config{Issuer: "Campus", Skew: 1})
}

func TestNewKeyBuildsProvisioningURI(t *testing.T) {
	key, err := testTOTP().NewKey(rand.Reader, "alice")
	require.NoError(t, err)

	require.Equal(t, "Campus", key.Issuer())
	require.Equal(t, "alice", key.AccountName())
	require.NotEmpty(t, key.Secret())
	require.True(t, strings.HasPrefix(key.URL(), "otpauth://totp/"))
}

func TestNewKeyRequiresAccount(t *testing.T) {
	_, err := testTOTP().NewKey(rand.Reader, "")
	require.Error(t, err)
}

func TestValidateAcceptsAdjacentSteps(t *testing.T) {
	tp := testTOTP()
	key, err := tp.NewKey(rand.Reader, "alice")
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 15, 0, time.UTC)
	for _, offset := range []time.Duration{-30 * time.Second, 0, 30 * time.Second} {
		code, err := tp.Code(key.Secret(), now.Add(offset))
		require.NoError(t, err)
		require.Truef(t, tp.Validate(code, key.Secret(), now), "offset %s", offset)
	}

	stale, err := tp.Code(key.Secret(), now.Add(-2*time.Minute))
	require.NoError(t, err)
	current, err := tp.Code(key.Secret(), now)
	require.NoError(t, err)
	if stale != current {
		require.False(t, tp.Validate(stale, key.Secret(), now))
	}
}

func TestValidateRejectsWrongShape(t *testing.T) {
	tp := testTOTP()
	key, err := tp.NewKey(rand.Reader, "alice")
	require.NoError(t, err)

	require.False(t, tp.Validate("12345", key.Secret(), time.Now()))
	require.False(t, tp.Validate("1234567", key.Secret(), time.Now()))
	require.False(t, tp.Validate("123456", "", time.Now()))
}

func TestQRCodeDataURI(t *testing.T) {
	tp := testTOTP()
	key, err := tp.NewKey(rand.Reader, "alice")
	require.NoError(t, err)

	uri, err := tp.QRCodeDataURI(key)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))
}

func TestGenerateBackupCodes(t *testing.T) {
	codes, err := GenerateBackupCodes(rand.Reader, DefaultBackupCodeCount)
	require.NoError(t, err)
	require.Len(t, codes, DefaultBackupCodeCount)

	seen := map[string]bool{}
	for _, c := range codes {
		require.Regexp(t, backupShape, c)
		require.False(t, seen[c], "duplicate code %s", c)
		seen[c] = true
	}
}

func TestGenerateBackupCodesSkipsDuplicates(t *testing.T) {
	src := bytes.NewReader([]byte{
		0xde, 0xad, 0xbe, 0xef,
		0xde, 0xad, 0xbe, 0xef,
		0x01, 0x02, 0x03, 0x04,
	})
	codes, err := GenerateBackupCodes(src, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"DEADBEEF", "01020304"}, codes)
}

func TestIndexOfIsExact(t *testing.T) {
	codes := []string{"DEADBEEF", "01020304"}
	require.Equal(t, 0, IndexOf(codes, "DEADBEEF"))
	require.Equal(t, -1, IndexOf(codes, "deadbeef"))
	require.Equal(t, -1, IndexOf(codes, " DEADBEEF"))

	rest := Remove(codes, 0)
	require.Equal(t, []string{"01020304"}, rest)
	require.Len(t, codes, 2)
}
