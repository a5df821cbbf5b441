package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/moneta-pay/moneta/internal/domain/payment"
	"github.com/moneta-pay/moneta/internal/infrastructure/persistence/mappers"
	"github.com/moneta-pay/moneta/internal/infrastructure/persistence/models"
	"github.com/moneta-pay/moneta/internal/shared/db"
	apperrors "github.com/moneta-pay/moneta/internal/shared/errors"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// AddPayment persists a newly observed payment. The record is declined with a
// nil result when the invoice no longer owes anything on the payment method.
func (r *PaymentRepository) AddPayment(ctx context.Context, p *payment.Payment, relatedTxIDs []string) (*payment.Payment, error) {
	tx := db.GetTxFromContext(ctx, r.db)

	var invoiceModel models.InvoiceModel
	err := tx.Where("invoice_id = ?", p.InvoiceID()).First(&invoiceModel).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("invoice not found", p.InvoiceID())
		}
		return nil, fmt.Errorf("failed to load invoice for payment: %w", err)
	}

	if invoiceModel.Status == models.InvoiceStatusSettled || invoiceModel.Status == models.InvoiceStatusExpired {
		return nil, nil
	}

	inv, err := mappers.InvoiceToDomain(&invoiceModel)
	if err != nil {
		return nil, err
	}
	if prompt := inv.PaymentPrompt(p.MethodID()); prompt != nil && prompt.DueRaw() == 0 {
		return nil, nil
	}

	model, err := mappers.PaymentToModel(p, relatedTxIDs)
	if err != nil {
		return nil, err
	}

	if err := tx.Create(model).Error; err != nil {
		if apperrors.IsDuplicateError(err) {
			return nil, apperrors.NewConflictError("payment already recorded", p.ID())
		}
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	return p, nil
}

// UpdatePayments persists a batch of re-observed payments in one transaction.
func (r *PaymentRepository) UpdatePayments(ctx context.Context, payments []*payment.Payment) error {
	if len(payments) == 0 {
		return nil
	}

	return db.GetTxFromContext(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		for _, p := range payments {
			model, err := mappers.PaymentToModel(p, nil)
			if err != nil {
				return err
			}

			result := tx.Model(&models.PaymentModel{}).
				Where("payment_id = ?", model.PaymentID).
				Updates(map[string]interface{}{
					"status":     model.Status,
					"details":    model.Details,
					"amount_raw": model.AmountRaw,
					"updated_at": model.UpdatedAt,
				})
			if result.Error != nil {
				return fmt.Errorf("failed to update payment %s: %w", model.PaymentID, result.Error)
			}
		}
		return nil
	})
}

func (r *PaymentRepository) GetByInvoice(ctx context.Context, invoiceID, methodID string) ([]*payment.Payment, error) {
	var paymentModels []models.PaymentModel

	if err := db.GetTxFromContext(ctx, r.db).
		Where("invoice_id = ? AND method_id = ?", invoiceID, methodID).
		Order("created_at ASC").
		Find(&paymentModels).Error; err != nil {
		return nil, fmt.Errorf("failed to get payments by invoice: %w", err)
	}

	payments := make([]*payment.Payment, 0, len(paymentModels))
	for i := range paymentModels {
		p, err := mappers.PaymentToDomain(&paymentModels[i])
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}

	return payments, nil
}
