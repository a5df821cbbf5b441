package walletrpc

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// FlexUint64 unmarshals from a JSON number or a string-encoded number. Some
// wallet daemons serialize 64-bit amounts as strings to survive lossy JSON
// parsers.
type FlexUint64 uint64

func (f *FlexUint64) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty numeric value")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return fmt.Errorf("cannot parse %q as uint64: %w", s, err)
		}
		*f = FlexUint64(v)
		return nil
	}
	var v uint64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = FlexUint64(v)
	return nil
}

func (f FlexUint64) MarshalJSON() ([]byte, error) {
	return json.Marshal(uint64(f))
}

// SubaddrIndex identifies a wallet receiving address by account (major) and
// address (minor) index.
type SubaddrIndex struct {
	Major FlexUint64 `json:"major"`
	Minor FlexUint64 `json:"minor"`
}

// Transfer is one incoming transfer as reported by the wallet service.
type Transfer struct {
	Address       string       `json:"address"`
	Amount        FlexUint64   `json:"amount"`
	Confirmations FlexUint64   `json:"confirmations"`
	Height        FlexUint64   `json:"height"`
	TxID          string       `json:"txid"`
	Type          string       `json:"type"`
	UnlockTime    FlexUint64   `json:"unlock_time"`
	SubaddrIndex  SubaddrIndex `json:"subaddr_index"`
}

// TransferByTxID is the wallet's view of a single transaction: the summary
// transfer plus one entry per output destination.
type TransferByTxID struct {
	Transfer  Transfer   `json:"transfer"`
	Transfers []Transfer `json:"transfers"`
}

type getTransfersRequest struct {
	AccountIndex   uint64   `json:"account_index"`
	In             bool     `json:"in"`
	SubaddrIndices []uint64 `json:"subaddr_indices,omitempty"`
}

type getTransfersResponse struct {
	In []Transfer `json:"in"`
}

type getAccountsResponse struct {
	SubaddressAccounts []struct {
		AccountIndex FlexUint64 `json:"account_index"`
	} `json:"subaddress_accounts"`
}

type getTransferByTxIDRequest struct {
	TxID         string  `json:"txid"`
	AccountIndex *uint64 `json:"account_index,omitempty"`
}

type getHeightResponse struct {
	Height FlexUint64 `json:"height"`
}
