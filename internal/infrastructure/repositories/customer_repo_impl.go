package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"gorm.io/gorm"
	"dhecash.backend/internal/domain/entities"
	domainerrors "dhecash.backend/internal/domain/errors"
	"dhecash.backend/internal/infrastructure/models"
)

// CustomerRepository implements customer data operations
type CustomerRepository struct {
	db *gorm.DB
}

// NewCustomerRepository creates a new customer repository
func NewCustomerRepository(db *gorm.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// Create inserts a new customer
func (r *CustomerRepository) Create(ctx context.Context, customer *entities.Customer) error {
	m := r.toModel(customer)
	db := GetDB(ctx, r.db)
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	customer.ID = m.ID
	return nil
}

// FindByIdentity locates a customer by email or phone within one
// (merchant, environment) scope
func (r *CustomerRepository) FindByIdentity(ctx context.Context, merchantID uuid.UUID, environment, email, phone string) (*entities.Customer, error) {
	db := GetDB(ctx, r.db)
	q := db.WithContext(ctx).
		Where("merchant_id = ? AND environment = ?", merchantID, environment)

	switch {
	case email != "" && phone != "":
		q = q.Where("email = ? OR phone = ?", email, phone)
	case email != "":
		q = q.Where("email = ?", email)
	case phone != "":
		q = q.Where("phone = ?", phone)
	default:
		return nil, domainerrors.ErrNotFound
	}

	var m models.Customer
	if err := q.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return r.toEntity(&m), nil
}

// Update persists the mutable aggregate fields of a customer
func (r *CustomerRepository) Update(ctx context.Context, customer *entities.Customer) error {
	db := GetDB(ctx, r.db)
	result := db.WithContext(ctx).Model(&models.Customer{}).
		Where("id = ?", customer.ID).
		Updates(map[string]interface{}{
			"name":            customer.Name.Ptr(),
			"total_spent":     customer.TotalSpent,
			"payment_count":   customer.PaymentCount,
			"last_payment_at": customer.LastPaymentAt,
			"updated_at":      time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

func (r *CustomerRepository) toModel(c *entities.Customer) *models.Customer {
	return &models.Customer{
		ID:             c.ID,
		MerchantID:     c.MerchantID,
		Environment:    c.Environment,
		Email:          c.Email.Ptr(),
		Phone:          c.Phone.Ptr(),
		Name:           c.Name.Ptr(),
		TotalSpent:     c.TotalSpent,
		PaymentCount:   c.PaymentCount,
		FirstPaymentAt: c.FirstPaymentAt,
		LastPaymentAt:  c.LastPaymentAt,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

func (r *CustomerRepository) toEntity(m *models.Customer) *entities.Customer {
	return &entities.Customer{
		ID:             m.ID,
		MerchantID:     m.MerchantID,
		Environment:    m.Environment,
		Email:          null.StringFromPtr(m.Email),
		Phone:          null.StringFromPtr(m.Phone),
		Name:           null.StringFromPtr(m.Name),
		TotalSpent:     m.TotalSpent,
		PaymentCount:   m.PaymentCount,
		FirstPaymentAt: m.FirstPaymentAt,
		LastPaymentAt:  m.LastPaymentAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}
