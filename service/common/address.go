package common

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// SolanaAddress stores a public key as its base58 string.
type SolanaAddress solana.PublicKey

func (a SolanaAddress) PublicKey() solana.PublicKey {
	return solana.PublicKey(a)
}

func (a SolanaAddress) IsZero() bool {
	return solana.PublicKey(a) == solana.PublicKey{}
}

func (a SolanaAddress) String() string {
	return solana.PublicKey(a).String()
}

func (a SolanaAddress) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *SolanaAddress) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*a = SolanaAddress{}
		return nil
	}
	parsed, err := SolanaAddressFromString(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a SolanaAddress) Value() (driver.Value, error) {
	return a.String(), nil
}

func (a *SolanaAddress) Scan(value interface{}) error {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("failed to unmarshal SolanaAddress value: %v", value)
	}
	parsed, err := SolanaAddressFromString(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (SolanaAddress) GormDataType() string {
	return "varchar(44)"
}

func SolanaAddressFromString(s string) (SolanaAddress, error) {
	pk, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return SolanaAddress{}, fmt.Errorf("invalid solana address %q: %w", s, err)
	}
	return SolanaAddress(pk), nil
}
