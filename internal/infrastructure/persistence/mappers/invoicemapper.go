package mappers

import (
	"encoding/json"
	"fmt"

	"github.com/moneta-pay/moneta/internal/domain/invoice"
	"github.com/moneta-pay/moneta/internal/infrastructure/persistence/models"
)

// promptRecord is the JSON shape of one payment prompt inside the invoice
// row's prompts blob.
type promptRecord struct {
	MethodID                     string `json:"methodId"`
	Destination                  string `json:"destination"`
	Activated                    bool   `json:"activated"`
	DueRaw                       uint64 `json:"dueRaw"`
	AccountIndex                 uint64 `json:"accountIndex"`
	AddressIndex                 uint64 `json:"addressIndex"`
	SettledConfirmationThreshold *int64 `json:"settledConfirmationThreshold,omitempty"`
}

func InvoiceToModel(inv *invoice.Invoice, status string) (*models.InvoiceModel, error) {
	prompts := inv.Prompts()
	records := make([]promptRecord, 0, len(prompts))
	for _, prompt := range prompts {
		details := prompt.Details()
		records = append(records, promptRecord{
			MethodID:                     prompt.MethodID(),
			Destination:                  prompt.Destination(),
			Activated:                    prompt.Activated(),
			DueRaw:                       prompt.DueRaw(),
			AccountIndex:                 details.AccountIndex,
			AddressIndex:                 details.AddressIndex,
			SettledConfirmationThreshold: details.SettledConfirmationThreshold,
		})
	}

	blob, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal prompts: %w", err)
	}

	return &models.InvoiceModel{
		InvoiceID:   inv.ID(),
		SpeedPolicy: string(inv.SpeedPolicy()),
		Status:      status,
		Prompts:     blob,
	}, nil
}

func InvoiceToDomain(model *models.InvoiceModel) (*invoice.Invoice, error) {
	var records []promptRecord
	if err := json.Unmarshal(model.Prompts, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts for invoice %s: %w", model.InvoiceID, err)
	}

	prompts := make([]invoice.PaymentPrompt, 0, len(records))
	for _, record := range records {
		prompt, err := invoice.NewPaymentPrompt(record.MethodID, record.Destination, record.Activated, record.DueRaw, invoice.PromptDetails{
			AccountIndex:                 record.AccountIndex,
			AddressIndex:                 record.AddressIndex,
			SettledConfirmationThreshold: record.SettledConfirmationThreshold,
		})
		if err != nil {
			return nil, fmt.Errorf("invalid prompt for invoice %s: %w", model.InvoiceID, err)
		}
		prompts = append(prompts, prompt)
	}

	return invoice.ReconstructInvoice(model.InvoiceID, invoice.SpeedPolicy(model.SpeedPolicy), prompts), nil
}

// MarshalPrompts serializes the prompts of an invoice for an in-place row
// update.
func MarshalPrompts(inv *invoice.Invoice) ([]byte, error) {
	model, err := InvoiceToModel(inv, models.InvoiceStatusProcessing)
	if err != nil {
		return nil, err
	}
	return model.Prompts, nil
}
