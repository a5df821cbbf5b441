package mappers

import (
	"encoding/json"
	"fmt"

	"github.com/moneta-pay/moneta/internal/domain/payment"
	"github.com/moneta-pay/moneta/internal/infrastructure/persistence/models"
)

func PaymentToModel(p *payment.Payment, relatedTxIDs []string) (*models.PaymentModel, error) {
	details, err := json.Marshal(p.Details())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payment details: %w", err)
	}

	model := &models.PaymentModel{
		PaymentID:   p.ID(),
		InvoiceID:   p.InvoiceID(),
		MethodID:    p.MethodID(),
		Destination: p.Destination(),
		Currency:    p.Currency(),
		AmountRaw:   p.AmountRaw(),
		Status:      string(p.Status()),
		Details:     details,
		CreatedAt:   p.CreatedAt(),
		UpdatedAt:   p.UpdatedAt(),
	}

	if len(relatedTxIDs) > 0 {
		blob, err := json.Marshal(relatedTxIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal related tx ids: %w", err)
		}
		model.RelatedTxIDs = blob
	}

	return model, nil
}

func PaymentToDomain(model *models.PaymentModel) (*payment.Payment, error) {
	var details payment.Details
	if err := json.Unmarshal(model.Details, &details); err != nil {
		return nil, fmt.Errorf("failed to unmarshal details for payment %s: %w", model.PaymentID, err)
	}

	status := payment.Status(model.Status)
	if status != payment.StatusProcessing && status != payment.StatusSettled {
		return nil, fmt.Errorf("invalid payment status %q for payment %s", model.Status, model.PaymentID)
	}

	return payment.ReconstructPayment(
		model.PaymentID,
		model.InvoiceID,
		model.MethodID,
		model.Destination,
		model.Currency,
		model.AmountRaw,
		status,
		details,
		model.CreatedAt,
		model.UpdatedAt,
	), nil
}
