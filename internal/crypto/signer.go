// Package crypto signs and verifies EIP-712 caller authorizations so an API
// request can prove it was sent by the address named in X-Caller-Address.
package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

const (
	domainName    = "ERTLedger"
	domainVersion = "1"
)

var (
	// EIP712Domain(string name,string version,uint256 chainId)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)

	// CallerAuth(address caller,uint256 timestamp,string method,string path,bytes32 bodyHash)
	callerAuthTypeHash = ethcrypto.Keccak256(
		[]byte("CallerAuth(address caller,uint256 timestamp,string method,string path,bytes32 bodyHash)"),
	)
)

var (
	ErrBadSignature   = errors.New("crypto: malformed signature")
	ErrSignerMismatch = errors.New("crypto: signature does not match caller")
	ErrExpired        = errors.New("crypto: authorization timestamp outside allowed skew")
)

// Authorization is the signed statement "caller sends method path with a
// body hashing to BodyHash at timestamp".
type Authorization struct {
	Caller    common.Address
	Timestamp int64 // unix seconds
	Method    string
	Path      string
	BodyHash  common.Hash
}

// BodyHash returns keccak256(body).
func BodyHash(body []byte) common.Hash {
	return ethcrypto.Keccak256Hash(body)
}

// Signer produces caller authorizations from a secp256k1 key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	domainSep  []byte
}

// NewSigner creates a Signer from a hex-encoded private key for chainID.
func NewSigner(privateKeyHex string, chainID uint64) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		domainSep:  domainSeparator(chainID),
	}, nil
}

// Address returns the address derived from the signer's key.
func (s *Signer) Address() common.Address {
	return s.address
}

// Sign authorizes method, path and body at ts and returns a hex 65-byte
// signature.
func (s *Signer) Sign(method, path string, body []byte, ts time.Time) (string, error) {
	digest := eip712Hash(s.domainSep, structHash(Authorization{
		Caller:    s.address,
		Timestamp: ts.Unix(),
		Method:    method,
		Path:      path,
		BodyHash:  BodyHash(body),
	}))
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}
	// go-ethereum returns v in {0,1}; wallets produce {27,28}.
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// Verifier checks caller authorizations against a chain ID and a clock.
type Verifier struct {
	domainSep []byte
	maxSkew   time.Duration
	now       func() time.Time
}

// NewVerifier creates a Verifier accepting timestamps within maxSkew of now.
func NewVerifier(chainID uint64, maxSkew time.Duration) *Verifier {
	if maxSkew <= 0 {
		maxSkew = 5 * time.Minute
	}
	return &Verifier{
		domainSep: domainSeparator(chainID),
		maxSkew:   maxSkew,
		now:       time.Now,
	}
}

// Verify returns nil when sigHex is a valid signature by auth.Caller over
// auth.
func (v *Verifier) Verify(auth Authorization, sigHex string) error {
	skew := v.now().Sub(time.Unix(auth.Timestamp, 0))
	if skew > v.maxSkew || skew < -v.maxSkew {
		return ErrExpired
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil || len(sig) != 65 {
		return ErrBadSignature
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	digest := eip712Hash(v.domainSep, structHash(auth))
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return ErrBadSignature
	}
	if ethcrypto.PubkeyToAddress(*pub) != auth.Caller {
		return ErrSignerMismatch
	}
	return nil
}

// domainSeparator returns keccak256(abi.encode(typeHash, nameHash, versionHash, chainId)).
func domainSeparator(chainID uint64) []byte {
	id := uint256.NewInt(chainID).Bytes32()
	return ethcrypto.Keccak256(
		eip712DomainTypeHash,
		ethcrypto.Keccak256([]byte(domainName)),
		ethcrypto.Keccak256([]byte(domainVersion)),
		id[:],
	)
}

func structHash(a Authorization) []byte {
	ts := uint256.NewInt(uint64(a.Timestamp)).Bytes32()
	return ethcrypto.Keccak256(
		callerAuthTypeHash,
		common.LeftPadBytes(a.Caller.Bytes(), 32),
		ts[:],
		ethcrypto.Keccak256([]byte(a.Method)),
		ethcrypto.Keccak256([]byte(a.Path)),
		a.BodyHash.Bytes(),
	)
}

// eip712Hash computes the final EIP-712 digest:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256([]byte{0x19, 0x01}, domainSep, structHash)
}
