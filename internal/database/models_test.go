package database

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressKey(t *testing.T) {
	addr := common.HexToAddress("0xAbCdEf0123456789aBcDeF0123456789AbCdEf01")
	key := AddressKey(addr)
	assert.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", key)
	// Same address in any casing maps to the same key.
	assert.Equal(t, key, AddressKey(common.HexToAddress(key)))
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "0xabcdef", NormalizeAddress("0xABCdef"))
	assert.Equal(t, "", NormalizeAddress(""))
}

func TestBigIntToNumeric(t *testing.T) {
	assert.Nil(t, BigIntToNumeric(nil))

	v, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)
	s := BigIntToNumeric(v)
	require.NotNil(t, s)
	assert.Equal(t, "123456789012345678901234567890", *s)
}

func TestNumericToBigInt(t *testing.T) {
	n, err := NumericToBigInt(nil)
	require.NoError(t, err)
	assert.Nil(t, n)

	str := "987654321098765432109876543210"
	n, err = NumericToBigInt(&str)
	require.NoError(t, err)
	assert.Equal(t, str, n.String())

	bad := "not-a-number"
	_, err = NumericToBigInt(&bad)
	assert.Error(t, err)
}
