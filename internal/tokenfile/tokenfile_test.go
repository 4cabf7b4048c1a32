package tokenfile

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestLoad_FileNotFound(t *testing.T) {
	tf, err := Load(filepath.Join(t.TempDir(), "token.json"))
	assert.NoError(t, err)
	assert.Nil(t, tf)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")

	expiry := time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)
	in := &File{
		Token: &oauth2.Token{
			AccessToken:  "sl.access",
			RefreshToken: "refresh",
			TokenType:    "bearer",
			Expiry:       expiry,
		},
		Meta: Meta{UID: "12345", AccountID: "dbid:AAB"},
	}

	before := time.Now().UTC().Add(-time.Second)
	require.NoError(t, Save(path, in))

	out, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.Equal(t, "sl.access", out.Token.AccessToken)
	assert.Equal(t, "refresh", out.Token.RefreshToken)
	assert.True(t, out.Token.Expiry.Equal(expiry))
	assert.Equal(t, "12345", out.Meta.UID)
	assert.Equal(t, "dbid:AAB", out.Meta.AccountID)
	assert.True(t, out.Meta.SavedAt.After(before))
	assert.True(t, in.Meta.SavedAt.IsZero(), "Save must not modify its argument")
}

func TestSave_Permissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}

	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, Save(path, &File{Token: &oauth2.Token{AccessToken: "a"}}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestSave_Nothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")

	assert.Error(t, Save(path, nil))
	assert.Error(t, Save(path, &File{}))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"not json", "{{{", "decoding"},
		{"no token", `{"meta":{"uid":"1"}}`, "no access token"},
		{"empty access token", `{"token":{"access_token":""}}`, "no access token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "token.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			tf, err := Load(path)
			assert.Nil(t, tf)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestUpdateMeta(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, Save(path, &File{
		Token: &oauth2.Token{AccessToken: "a"},
		Meta:  Meta{UID: "1"},
	}))

	require.NoError(t, UpdateMeta(path, func(m *Meta) {
		m.DisplayName = "Franz Ferdinand"
		m.Email = "franz@example.com"
	}))

	tf, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "1", tf.Meta.UID)
	assert.Equal(t, "Franz Ferdinand", tf.Meta.DisplayName)
	assert.Equal(t, "franz@example.com", tf.Meta.Email)
	assert.Equal(t, "a", tf.Token.AccessToken)
}

func TestUpdateMeta_NoFile(t *testing.T) {
	err := UpdateMeta(filepath.Join(t.TempDir(), "token.json"), func(*Meta) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no token file")
}
