package crypto

import (
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known development key (hardhat account #0).
const devKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var at = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newPair(t *testing.T) (*Signer, *Verifier) {
	t.Helper()
	s, err := NewSigner(devKey, 1)
	require.NoError(t, err)
	v := NewVerifier(1, time.Minute)
	v.now = func() time.Time { return at }
	return s, v
}

func TestSigner_Address(t *testing.T) {
	s, _ := newPair(t)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), s.Address())
}

func TestVerify_RoundTrip(t *testing.T) {
	s, v := newPair(t)
	sig, err := s.Sign("POST", "/api/rights/1/settle", nil, at)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sig, "0x"))

	auth := Authorization{Caller: s.Address(), Timestamp: at.Unix(), Method: "POST", Path: "/api/rights/1/settle", BodyHash: BodyHash(nil)}
	require.NoError(t, v.Verify(auth, sig))

	other := auth
	other.Path = "/api/rights/2/settle"
	assert.Error(t, v.Verify(other, sig))

	other = auth
	other.Caller = common.HexToAddress("0xc1")
	assert.Error(t, v.Verify(other, sig))
}

func TestVerify_Rejects(t *testing.T) {
	s, v := newPair(t)
	auth := Authorization{Caller: s.Address(), Timestamp: at.Unix(), Method: "POST", Path: "/x", BodyHash: BodyHash(nil)}

	assert.ErrorIs(t, v.Verify(auth, "0x1234"), ErrBadSignature)
	assert.ErrorIs(t, v.Verify(auth, "zz"), ErrBadSignature)

	stale := at.Add(-2 * time.Minute)
	sig, err := s.Sign("POST", "/x", nil, stale)
	require.NoError(t, err)
	auth.Timestamp = stale.Unix()
	assert.ErrorIs(t, v.Verify(auth, sig), ErrExpired)
}

func TestVerify_ChainIDIsPartOfDomain(t *testing.T) {
	s, _ := newPair(t)
	v := NewVerifier(137, time.Minute)
	v.now = func() time.Time { return at }

	sig, err := s.Sign("GET", "/api/pool", nil, at)
	require.NoError(t, err)
	err = v.Verify(Authorization{Caller: s.Address(), Timestamp: at.Unix(), Method: "GET", Path: "/api/pool", BodyHash: BodyHash(nil)}, sig)
	assert.Error(t, err)
}

func TestVerify_BodyIsSigned(t *testing.T) {
	s, v := newPair(t)
	body := []byte(`{"recipient":"0x00000000000000000000000000000000000000c1","amount":"10"}`)
	sig, err := s.Sign("POST", "/api/admin/insurance/payout", body, at)
	require.NoError(t, err)

	auth := Authorization{
		Caller:    s.Address(),
		Timestamp: at.Unix(),
		Method:    "POST",
		Path:      "/api/admin/insurance/payout",
		BodyHash:  BodyHash(body),
	}
	require.NoError(t, v.Verify(auth, sig))

	auth.BodyHash = BodyHash([]byte(`{"recipient":"0x00000000000000000000000000000000000000c2","amount":"9000"}`))
	assert.Error(t, v.Verify(auth, sig))
	auth.BodyHash = BodyHash(nil)
	assert.Error(t, v.Verify(auth, sig))
}

func TestNewSigner_InvalidKey(t *testing.T) {
	_, err := NewSigner("not-hex", 1)
	require.Error(t, err)
}
