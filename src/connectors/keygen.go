package connectors

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160"

	"atcpay/src/model"
)

const (
	btcP2PKHVersion = 0x00
	btcWIFVersion   = 0x80
	btcWIFCompress  = 0x01
)

// DepositKey is a one-time receiving address and the secret controlling it.
type DepositKey struct {
	Address string
	Secret  string
}

// KeyGenerator creates fresh deposit addresses for every accepted currency.
type KeyGenerator struct{}

func NewKeyGenerator() *KeyGenerator {
	return &KeyGenerator{}
}

func (g *KeyGenerator) Generate(currency string) (DepositKey, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return DepositKey{}, fmt.Errorf("generate key: %w", err)
	}

	switch currency {
	case model.CurrencyBTC:
		return bitcoinKey(key), nil
	case model.CurrencyETH, model.CurrencyUSDT:
		return ethereumKey(key), nil
	}
	return DepositKey{}, fmt.Errorf("no deposit address scheme for %q", currency)
}

// ethereumKey serves both ether and ERC-20 deposits.
func ethereumKey(key *ecdsa.PrivateKey) DepositKey {
	return DepositKey{
		Address: crypto.PubkeyToAddress(key.PublicKey).Hex(),
		Secret:  hexutil.Encode(crypto.FromECDSA(key)),
	}
}

// bitcoinKey derives a compressed P2PKH address and its WIF secret.
func bitcoinKey(key *ecdsa.PrivateKey) DepositKey {
	pub := crypto.CompressPubkey(&key.PublicKey)

	sha := sha256.Sum256(pub)
	h := ripemd160.New()
	h.Write(sha[:])
	pubHash := h.Sum(nil)

	wif := append([]byte{btcWIFVersion}, crypto.FromECDSA(key)...)
	wif = append(wif, btcWIFCompress)

	return DepositKey{
		Address: base58Check(btcP2PKHVersion, pubHash),
		Secret:  base58Check(wif[0], wif[1:]),
	}
}

func base58Check(version byte, payload []byte) string {
	data := make([]byte, 0, 1+len(payload)+4)
	data = append(data, version)
	data = append(data, payload...)

	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	data = append(data, second[:4]...)

	return base58.Encode(data)
}
