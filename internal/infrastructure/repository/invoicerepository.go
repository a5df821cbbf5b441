package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/moneta-pay/moneta/internal/domain/invoice"
	"github.com/moneta-pay/moneta/internal/infrastructure/persistence/mappers"
	"github.com/moneta-pay/moneta/internal/infrastructure/persistence/models"
	"github.com/moneta-pay/moneta/internal/shared/biztime"
	"github.com/moneta-pay/moneta/internal/shared/db"
	apperrors "github.com/moneta-pay/moneta/internal/shared/errors"
)

// monitoredStatuses are the invoice statuses still awaiting payment.
var monitoredStatuses = []string{models.InvoiceStatusNew, models.InvoiceStatusProcessing}

type InvoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

func (r *InvoiceRepository) GetMonitoredInvoices(ctx context.Context, methodID string) ([]*invoice.Invoice, error) {
	var invoiceModels []models.InvoiceModel

	if err := db.GetTxFromContext(ctx, r.db).
		Where("status IN ?", monitoredStatuses).
		Find(&invoiceModels).Error; err != nil {
		return nil, fmt.Errorf("failed to get monitored invoices: %w", err)
	}

	invoices := make([]*invoice.Invoice, 0, len(invoiceModels))
	for i := range invoiceModels {
		inv, err := mappers.InvoiceToDomain(&invoiceModels[i])
		if err != nil {
			return nil, err
		}
		if inv.PaymentPrompt(methodID) == nil {
			continue
		}
		invoices = append(invoices, inv)
	}

	return invoices, nil
}

func (r *InvoiceRepository) GetInvoiceFromAddress(ctx context.Context, methodID, address string) (*invoice.Invoice, error) {
	var addressModel models.InvoiceAddressModel

	err := db.GetTxFromContext(ctx, r.db).
		Where("method_id = ? AND address = ?", methodID, address).
		First(&addressModel).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up invoice address: %w", err)
	}

	return r.GetInvoice(ctx, addressModel.InvoiceID)
}

func (r *InvoiceRepository) GetInvoice(ctx context.Context, id string) (*invoice.Invoice, error) {
	var model models.InvoiceModel

	err := db.GetTxFromContext(ctx, r.db).
		Where("invoice_id = ?", id).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	return mappers.InvoiceToDomain(&model)
}

func (r *InvoiceRepository) ActivatePaymentMethod(ctx context.Context, invoiceID, methodID string) error {
	inv, err := r.GetInvoice(ctx, invoiceID)
	if err != nil {
		return err
	}
	if inv == nil {
		return apperrors.NewNotFoundError("invoice not found", invoiceID)
	}

	prompt := inv.PaymentPrompt(methodID)
	if prompt == nil {
		return apperrors.NewNotFoundError("invoice has no prompt for method", methodID)
	}
	prompt.Activate()

	blob, err := mappers.MarshalPrompts(inv)
	if err != nil {
		return err
	}

	tx := db.GetTxFromContext(ctx, r.db)

	result := tx.Model(&models.InvoiceModel{}).
		Where("invoice_id = ?", invoiceID).
		Updates(map[string]interface{}{
			"prompts":    blob,
			"updated_at": biztime.NowUTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to activate payment method: %w", result.Error)
	}

	// Keep the historical address index covering the active destination.
	addressModel := models.InvoiceAddressModel{
		InvoiceID: invoiceID,
		MethodID:  methodID,
		Address:   prompt.Destination(),
	}
	if err := tx.Where(models.InvoiceAddressModel{
		MethodID: methodID,
		Address:  prompt.Destination(),
	}).FirstOrCreate(&addressModel).Error; err != nil {
		return fmt.Errorf("failed to index invoice address: %w", err)
	}

	return nil
}
