package relay_exchange_test

import (
	"strings"
	"testing"
	"time"

	relay_exchange "github.com/jacksonzamorano/relay/relay-exchange"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type TestMessage struct {
	Message string `json:"message"`
}

var testKey = []byte("SOME_RANDOM_KEY_SOME_RANDOM_KEY_")

func TestEndToEnd(t *testing.T) {
	sealer, err := relay_exchange.NewSealer(testKey)
	require.NoError(t, err)

	value := TestMessage{Message: "Hello, world!"}
	token, err := sealer.Seal(value)
	require.NoError(t, err)
	assert.NotContains(t, token, "Hello")

	decrypted, err := relay_exchange.Open[TestMessage](sealer, token)
	require.NoError(t, err)
	assert.Equal(t, value.Message, decrypted.Message)
}

func TestSealUsesFreshNonce(t *testing.T) {
	sealer, err := relay_exchange.NewSealer(testKey)
	require.NoError(t, err)

	a, err := sealer.Seal(TestMessage{Message: "same"})
	require.NoError(t, err)
	b, err := sealer.Seal(TestMessage{Message: "same"})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOpenRejectsBadTokens(t *testing.T) {
	sealer, err := relay_exchange.NewSealer(testKey)
	require.NoError(t, err)
	other, err := relay_exchange.NewSealer([]byte(strings.Repeat("k", relay_exchange.KeySize)))
	require.NoError(t, err)

	token, err := sealer.Seal(TestMessage{Message: "secret"})
	require.NoError(t, err)

	tampered := []byte(token)
	if tampered[len(tampered)-1] == '0' {
		tampered[len(tampered)-1] = '1'
	} else {
		tampered[len(tampered)-1] = '0'
	}

	tests := []struct {
		name  string
		token string
		with  *relay_exchange.Sealer
	}{
		{"not hex", "zz", sealer},
		{"too short", "abcd", sealer},
		{"tampered", string(tampered), sealer},
		{"wrong key", token, other},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := relay_exchange.Open[TestMessage](tt.with, tt.token)
			assert.ErrorIs(t, err, relay_exchange.ErrInvalidToken)
		})
	}
}

func TestNewSealerKeySize(t *testing.T) {
	_, err := relay_exchange.NewSealer([]byte("short"))
	assert.ErrorIs(t, err, relay_exchange.ErrKeySize)
}

func TestExpiringTokens(t *testing.T) {
	sealer, err := relay_exchange.NewSealer(testKey)
	require.NoError(t, err)

	token, err := relay_exchange.SealFor(sealer, TestMessage{Message: "hi"}, time.Minute)
	require.NoError(t, err)

	got, err := relay_exchange.OpenValid[TestMessage](sealer, token, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Message)

	_, err = relay_exchange.OpenValid[TestMessage](sealer, token, time.Now().Add(2*time.Minute))
	assert.ErrorIs(t, err, relay_exchange.ErrExpired)
}

func TestSealUntil(t *testing.T) {
	sealer, err := relay_exchange.NewSealer(testKey)
	require.NoError(t, err)

	expires := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	token, err := relay_exchange.SealUntil(sealer, TestMessage{Message: "later"}, expires)
	require.NoError(t, err)

	_, err = relay_exchange.OpenValid[TestMessage](sealer, token, expires.Add(-time.Second))
	require.NoError(t, err)
	_, err = relay_exchange.OpenValid[TestMessage](sealer, token, expires)
	assert.ErrorIs(t, err, relay_exchange.ErrExpired)
}
