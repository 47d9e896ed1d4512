package receipts

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestNewKeyManager(t *testing.T) {
	km, err := NewKeyManager()
	assert.NoError(t, err)
	assert.NotNil(t, km)
	assert.NotNil(t, km.privateKey)
	assert.NotNil(t, km.PublicKey)
	check.Equal(t, "P-256", km.PublicKey.Curve.Params().Name)
}

func TestKeyManager_PublicKeyPEM(t *testing.T) {
	km, err := NewKeyManager()
	assert.NoError(t, err)

	pemStr, err := km.PublicKeyPEM()
	assert.NoError(t, err)

	assert.True(t, strings.HasPrefix(pemStr, "-----BEGIN PUBLIC KEY-----"))
	assert.True(t, strings.HasSuffix(strings.TrimSpace(pemStr), "-----END PUBLIC KEY-----"))

	block, _ := pem.Decode([]byte(pemStr))
	assert.NotNil(t, block)
	assert.Equal(t, "PUBLIC KEY", block.Type)

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	assert.NoError(t, err)
	check.True(t, km.PublicKey.Equal(parsed))
}

func TestKeyManager_UniqueKeys(t *testing.T) {
	km1, _ := NewKeyManager()
	km2, _ := NewKeyManager()

	pem1, _ := km1.PublicKeyPEM()
	pem2, _ := km2.PublicKeyPEM()

	assert.NotEqual(t, pem1, pem2)
}

func TestLoadKeyManager(t *testing.T) {
	km, err := NewKeyManager()
	assert.NoError(t, err)
	privatePEM, err := km.PrivateKeyPEM()
	assert.NoError(t, err)

	path := filepath.Join(t.TempDir(), "receipt-key.pem")
	assert.NoError(t, os.WriteFile(path, []byte(privatePEM), 0o600))

	loaded, err := LoadKeyManager(path)
	assert.NoError(t, err)
	check.True(t, km.PublicKey.Equal(loaded.PublicKey))

	_, err = LoadKeyManager(filepath.Join(t.TempDir(), "missing.pem"))
	check.Error(t, err)
}

func TestParsePrivateKeyPEM_PKCS8(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	assert.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	assert.NoError(t, err)

	km, err := ParsePrivateKeyPEM(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
	assert.NoError(t, err)
	check.True(t, key.PublicKey.Equal(km.PublicKey))
}

func TestParsePrivateKeyPEM_Rejects(t *testing.T) {
	p384, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	assert.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(p384)
	assert.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"not pem", []byte("garbage")},
		{"wrong block type", pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte{1}})},
		{"wrong curve", pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})},
		{"corrupt key", pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: []byte{1, 2, 3}})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePrivateKeyPEM(tt.data)
			check.Error(t, err)
		})
	}
}
