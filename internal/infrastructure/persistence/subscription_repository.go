package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/fitpulse/backend/internal/domain/shared"
	"github.com/fitpulse/backend/internal/domain/subscription"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubscriptionModel is the GORM model for subscriptions
type SubscriptionModel struct {
	ID                     uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserID                 string     `gorm:"type:varchar(128);not null;uniqueIndex"`
	Plan                   string     `gorm:"type:varchar(50);not null"`
	Status                 string     `gorm:"type:varchar(20);not null"`
	ProviderCustomerID     string     `gorm:"type:varchar(255);not null;index"`
	ProviderSubscriptionID string     `gorm:"type:varchar(255);not null;index"`
	ProviderSessionID      string     `gorm:"type:varchar(255);not null"`
	CurrentPeriodEnd       *time.Time `gorm:"column:current_period_end"`
	Source                 string     `gorm:"type:varchar(20);not null"`
	LastEventID            string     `gorm:"type:varchar(255);not null"`
	CreatedAt              time.Time  `gorm:"not null"`
	UpdatedAt              time.Time  `gorm:"not null"`
}

// TableName returns the table name for the model
func (SubscriptionModel) TableName() string {
	return "subscriptions"
}

// ToEntity converts the model to a domain entity
func (m *SubscriptionModel) ToEntity() *subscription.Subscription {
	var periodEnd *time.Time
	if m.CurrentPeriodEnd != nil {
		end := m.CurrentPeriodEnd.UTC()
		periodEnd = &end
	}
	return &subscription.Subscription{
		ID:                     m.ID,
		UserID:                 m.UserID,
		Plan:                   m.Plan,
		Status:                 subscription.Status(m.Status),
		ProviderCustomerID:     m.ProviderCustomerID,
		ProviderSubscriptionID: m.ProviderSubscriptionID,
		ProviderSessionID:      m.ProviderSessionID,
		CurrentPeriodEnd:       periodEnd,
		Source:                 subscription.Source(m.Source),
		LastEventID:            m.LastEventID,
		CreatedAt:              m.CreatedAt,
		UpdatedAt:              m.UpdatedAt,
	}
}

// SubscriptionModelFromEntity creates a model from a domain entity
func SubscriptionModelFromEntity(e *subscription.Subscription) *SubscriptionModel {
	return &SubscriptionModel{
		ID:                     e.ID,
		UserID:                 e.UserID,
		Plan:                   e.Plan,
		Status:                 string(e.Status),
		ProviderCustomerID:     e.ProviderCustomerID,
		ProviderSubscriptionID: e.ProviderSubscriptionID,
		ProviderSessionID:      e.ProviderSessionID,
		CurrentPeriodEnd:       e.CurrentPeriodEnd,
		Source:                 string(e.Source),
		LastEventID:            e.LastEventID,
		CreatedAt:              e.CreatedAt,
		UpdatedAt:              e.UpdatedAt,
	}
}

// GormSubscriptionRepository implements subscription.Repository using GORM
type GormSubscriptionRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormSubscriptionRepository creates a new GormSubscriptionRepository
func NewGormSubscriptionRepository(db *gorm.DB) *GormSubscriptionRepository {
	return &GormSubscriptionRepository{db: db, now: time.Now}
}

// FindByUserID finds the subscription owned by userID
func (r *GormSubscriptionRepository) FindByUserID(ctx context.Context, userID string) (*subscription.Subscription, error) {
	return r.findOne(r.db.WithContext(ctx).Where("user_id = ?", userID))
}

// FindByProviderSubscriptionID finds the subscription bound to a provider subscription
func (r *GormSubscriptionRepository) FindByProviderSubscriptionID(ctx context.Context, providerSubscriptionID string) (*subscription.Subscription, error) {
	return r.findOne(r.db.WithContext(ctx).
		Where("provider_subscription_id = ?", providerSubscriptionID).
		Order("updated_at DESC"))
}

func (r *GormSubscriptionRepository) findOne(q *gorm.DB) (*subscription.Subscription, error) {
	var model SubscriptionModel
	if err := q.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToEntity(), nil
}

// Upsert inserts sub or merges it into the user's existing row in one statement
func (r *GormSubscriptionRepository) Upsert(ctx context.Context, sub *subscription.Subscription) error {
	return r.upsert(r.db.WithContext(ctx), sub)
}

// UpsertProvisional locks the user's row and skips the write when the
// provider already confirmed the same checkout session.
func (r *GormSubscriptionRepository) UpsertProvisional(ctx context.Context, sub *subscription.Subscription) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing SubscriptionModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", sub.UserID).
			First(&existing).Error
		switch {
		case err == nil:
			if existing.ToEntity().ConfirmedBySession(sub.ProviderSessionID) {
				return nil
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		if err := r.upsert(tx, sub); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

func (r *GormSubscriptionRepository) upsert(tx *gorm.DB, sub *subscription.Subscription) error {
	now := r.now().UTC()
	model := SubscriptionModelFromEntity(sub)
	if model.ID == uuid.Nil {
		model.ID = uuid.New()
	}
	model.CreatedAt = now
	model.UpdatedAt = now

	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns(upsertColumns(sub)),
	}).Create(model).Error
}

// upsertColumns lists the columns an upsert overwrites on conflict,
// mirroring subscription.Subscription.MergeFrom.
func upsertColumns(sub *subscription.Subscription) []string {
	cols := []string{"status", "source", "updated_at"}
	if sub.Plan != "" {
		cols = append(cols, "plan")
	}
	if sub.ProviderCustomerID != "" {
		cols = append(cols, "provider_customer_id")
	}
	if sub.ProviderSubscriptionID != "" {
		cols = append(cols, "provider_subscription_id")
	}
	if sub.ProviderSessionID != "" {
		cols = append(cols, "provider_session_id")
	}
	if sub.CurrentPeriodEnd != nil {
		cols = append(cols, "current_period_end")
	}
	if sub.LastEventID != "" {
		cols = append(cols, "last_event_id")
	}
	return cols
}

// Update applies patch to the user's row, falling back to the provider
// subscription id when the user lookup matches nothing.
func (r *GormSubscriptionRepository) Update(ctx context.Context, filter subscription.Filter, patch subscription.Patch) (int64, error) {
	updates := patchColumns(patch, r.now().UTC())

	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if filter.UserID != "" {
			q := tx.Model(&SubscriptionModel{}).Where("user_id = ?", filter.UserID)
			if filter.ProviderSubscriptionID != "" {
				q = q.Where("(provider_subscription_id = '' OR provider_subscription_id = ?)", filter.ProviderSubscriptionID)
			}
			res := q.Updates(updates)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				affected = res.RowsAffected
				return nil
			}
		}

		if filter.ProviderSubscriptionID == "" {
			return nil
		}
		res := tx.Model(&SubscriptionModel{}).
			Where("provider_subscription_id = ?", filter.ProviderSubscriptionID).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		affected = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// patchColumns mirrors subscription.Patch.ApplyTo
func patchColumns(p subscription.Patch, now time.Time) map[string]interface{} {
	updates := map[string]interface{}{
		"status":     string(p.Status),
		"updated_at": now,
	}
	if p.ProviderSubscriptionID != "" {
		updates["provider_subscription_id"] = p.ProviderSubscriptionID
	}
	if p.ProviderCustomerID != "" {
		updates["provider_customer_id"] = p.ProviderCustomerID
	}
	if p.CurrentPeriodEnd != nil {
		updates["current_period_end"] = *p.CurrentPeriodEnd
	}
	if p.LastEventID != "" {
		updates["last_event_id"] = p.LastEventID
	}
	return updates
}

var _ subscription.Repository = (*GormSubscriptionRepository)(nil)
