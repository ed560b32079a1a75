package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/sol-hydraulics/multisender/service/common"
	multisender_http "github.com/sol-hydraulics/multisender/service/http"
)

// readRecipients parses "wallet,amount" rows. Amounts are in token units.
// A header row starting with "wallet" is skipped.
func readRecipients(r io.Reader) ([]multisender_http.ReqRecipient, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 2
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	res := []multisender_http.ReqRecipient{}
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		if line == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "wallet") {
			continue
		}

		wallet, err := common.SolanaAddressFromString(strings.TrimSpace(record[0]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid wallet: %w", line, err)
		}

		res = append(res, multisender_http.ReqRecipient{
			Wallet: wallet,
			Amount: strings.TrimSpace(record[1]),
		})
	}

	if len(res) == 0 {
		return nil, fmt.Errorf("no recipients")
	}

	return res, nil
}
