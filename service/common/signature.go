package common

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Signature is a nullable transaction signature column.
type Signature solana.Signature

func (s Signature) IsEmpty() bool {
	return solana.Signature(s) == solana.Signature{}
}

func (s Signature) String() string {
	if s.IsEmpty() {
		return ""
	}
	return solana.Signature(s).String()
}

func (s Signature) Value() (driver.Value, error) {
	if s.IsEmpty() {
		return nil, nil
	}
	return s.String(), nil
}

func (s *Signature) Scan(value interface{}) error {
	var str string
	switch v := value.(type) {
	case nil:
		*s = Signature{}
		return nil
	case string:
		str = v
	case []byte:
		str = string(v)
	default:
		return fmt.Errorf("failed to unmarshal Signature value: %v", value)
	}
	if str == "" {
		*s = Signature{}
		return nil
	}
	sig, err := solana.SignatureFromBase58(str)
	if err != nil {
		return err
	}
	*s = Signature(sig)
	return nil
}

func (s Signature) MarshalJSON() ([]byte, error) {
	if s.IsEmpty() {
		return json.Marshal(nil)
	}
	return json.Marshal(s.String())
}

func (s *Signature) UnmarshalJSON(data []byte) error {
	var str *string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	if str == nil || *str == "" {
		*s = Signature{}
		return nil
	}
	sig, err := solana.SignatureFromBase58(*str)
	if err != nil {
		return err
	}
	*s = Signature(sig)
	return nil
}

func (Signature) GormDataType() string {
	return "varchar(88)"
}
