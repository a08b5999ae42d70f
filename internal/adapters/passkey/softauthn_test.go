package passkey

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	flagUserPresent  byte = 0x01
	flagUserVerified byte = 0x04
	flagAttestedData byte = 0x40
)

// softAuthenticator is a software passkey: an ES256 key and a credential id,
// producing attestation and assertion bodies the way a browser would.
type softAuthenticator struct {
	key    *ecdsa.PrivateKey
	credID []byte
	rpID   string
	origin string
}

func newSoftAuthenticator(t *testing.T) *softAuthenticator {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	credID := make([]byte, 16)
	_, err = rand.Read(credID)
	require.NoError(t, err)
	return &softAuthenticator{key: key, credID: credID, rpID: "localhost", origin: "http://localhost:8080"}
}

func b64(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

// CBOR, just enough for COSE keys and attestation objects.
func cborHead(major byte, n uint64) []byte {
	m := major << 5
	switch {
	case n < 24:
		return []byte{m | byte(n)}
	case n <= 0xff:
		return []byte{m | 24, byte(n)}
	case n <= 0xffff:
		return binary.BigEndian.AppendUint16([]byte{m | 25}, uint16(n))
	default:
		return binary.BigEndian.AppendUint32([]byte{m | 26}, uint32(n))
	}
}

func cborInt(v int64) []byte {
	if v >= 0 {
		return cborHead(0, uint64(v))
	}
	return cborHead(1, uint64(-1-v))
}

func cborBytes(b []byte) []byte { return append(cborHead(2, uint64(len(b))), b...) }
func cborText(s string) []byte  { return append(cborHead(3, uint64(len(s))), s...) }

// coseKey encodes the public key as an EC2 COSE_Key (kty 2, alg ES256, crv P-256).
func (a *softAuthenticator) coseKey() []byte {
	x := a.key.PublicKey.X.FillBytes(make([]byte, 32))
	y := a.key.PublicKey.Y.FillBytes(make([]byte, 32))
	out := cborHead(5, 5)
	out = append(out, cborInt(1)...)
	out = append(out, cborInt(2)...)
	out = append(out, cborInt(3)...)
	out = append(out, cborInt(-7)...)
	out = append(out, cborInt(-1)...)
	out = append(out, cborInt(1)...)
	out = append(out, cborInt(-2)...)
	out = append(out, cborBytes(x)...)
	out = append(out, cborInt(-3)...)
	out = append(out, cborBytes(y)...)
	return out
}

func (a *softAuthenticator) clientData(t *testing.T, typ, challenge string) []byte {
	t.Helper()
	b, err := json.Marshal(struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
		Origin    string `json:"origin"`
	}{typ, challenge, a.origin})
	require.NoError(t, err)
	return b
}

func (a *softAuthenticator) authData(flags byte, counter uint32, attested []byte) []byte {
	rpHash := sha256.Sum256([]byte(a.rpID))
	out := append([]byte{}, rpHash[:]...)
	out = append(out, flags)
	out = binary.BigEndian.AppendUint32(out, counter)
	return append(out, attested...)
}

// attestation returns a "none" attestation body for challenge.
func (a *softAuthenticator) attestation(t *testing.T, challenge string, counter uint32) []byte {
	t.Helper()
	attested := make([]byte, 16) // zero AAGUID
	attested = binary.BigEndian.AppendUint16(attested, uint16(len(a.credID)))
	attested = append(attested, a.credID...)
	attested = append(attested, a.coseKey()...)
	authData := a.authData(flagUserPresent|flagUserVerified|flagAttestedData, counter, attested)

	obj := cborHead(5, 3)
	obj = append(obj, cborText("fmt")...)
	obj = append(obj, cborText("none")...)
	obj = append(obj, cborText("attStmt")...)
	obj = append(obj, cborHead(5, 0)...)
	obj = append(obj, cborText("authData")...)
	obj = append(obj, cborBytes(authData)...)

	body, err := json.Marshal(map[string]any{
		"id":    b64(a.credID),
		"rawId": b64(a.credID),
		"type":  "public-key",
		"response": map[string]any{
			"clientDataJSON":    b64(a.clientData(t, "webauthn.create", challenge)),
			"attestationObject": b64(obj),
			"transports":        []string{"internal"},
		},
	})
	require.NoError(t, err)
	return body
}

// assertion returns a signed assertion body for challenge reporting counter.
func (a *softAuthenticator) assertion(t *testing.T, challenge string, counter uint32, userHandle string) []byte {
	t.Helper()
	clientData := a.clientData(t, "webauthn.get", challenge)
	authData := a.authData(flagUserPresent|flagUserVerified, counter, nil)
	clientHash := sha256.Sum256(clientData)
	digest := sha256.Sum256(append(append([]byte{}, authData...), clientHash[:]...))
	sig, err := ecdsa.SignASN1(rand.Reader, a.key, digest[:])
	require.NoError(t, err)

	response := map[string]any{
		"clientDataJSON":    b64(clientData),
		"authenticatorData": b64(authData),
		"signature":         b64(sig),
	}
	if userHandle != "" {
		response["userHandle"] = b64([]byte(userHandle))
	}
	body, err := json.Marshal(map[string]any{
		"id":       b64(a.credID),
		"rawId":    b64(a.credID),
		"type":     "public-key",
		"response": response,
	})
	require.NoError(t, err)
	return body
}
