package guard_test

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-steam-sessions/guard"
)

const testSecret = "zvIrP7Z+demo+secret+material+base64=" // 26 bytes once decoded

func TestCodeAt_Deterministic(t *testing.T) {
	at := time.Unix(1700000000, 0)

	code1, err := guard.CodeAt(testSecret, at)
	require.NoError(t, err)
	code2, err := guard.CodeAt(testSecret, at)
	require.NoError(t, err)

	require.Equal(t, code1, code2)
	require.Len(t, code1, 5)
	for _, r := range code1 {
		require.True(t, strings.ContainsRune("23456789BCDFGHJKMNPQRTVWXY", r), "unexpected character %q", r)
	}
}

func TestCodeAt_StableWithinWindow(t *testing.T) {
	at := time.Unix(1700000010, 0) // window starts at 1700000010 - (1700000010 % 30)
	windowStart := at.Truncate(30 * time.Second)

	codeStart, err := guard.CodeAt(testSecret, windowStart)
	require.NoError(t, err)
	codeLate, err := guard.CodeAt(testSecret, windowStart.Add(29*time.Second))
	require.NoError(t, err)
	codeNext, err := guard.CodeAt(testSecret, windowStart.Add(30*time.Second))
	require.NoError(t, err)

	require.Equal(t, codeStart, codeLate)
	require.NotEqual(t, codeStart, codeNext)
}

func TestCodeAt_InvalidSecret(t *testing.T) {
	t.Run("not base64", func(t *testing.T) {
		_, err := guard.CodeAt("not-base64!!!", time.Now())
		require.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		empty := base64.StdEncoding.EncodeToString(nil)
		_, err := guard.CodeAt(empty, time.Now())
		require.Error(t, err)
	})
}

func TestCode_UsesNowTimeFunc(t *testing.T) {
	fixed := time.Unix(1700000000, 0)
	guard.NowTimeFunc = func() time.Time { return fixed }
	defer func() { guard.NowTimeFunc = time.Now }()

	fromNow, err := guard.Code(testSecret)
	require.NoError(t, err)
	fromAt, err := guard.CodeAt(testSecret, fixed)
	require.NoError(t, err)
	require.Equal(t, fromAt, fromNow)
}
