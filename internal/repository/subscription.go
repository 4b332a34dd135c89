package repository

import (
	"context"

	"github.com/okieraised/thermostat-alerts/internal/infrastructure/log"
	"github.com/okieraised/thermostat-alerts/internal/models"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubscriptionRepo is the subscription registry.
type SubscriptionRepo interface {
	Create(ctx context.Context, sub *models.AlertSubscription) error
	GetByID(ctx context.Context, id uint) (*models.AlertSubscription, error)
	ListByUser(ctx context.Context, userID uint) ([]models.AlertSubscription, error)
	ListEnabled(ctx context.Context) ([]models.AlertSubscription, error)
	Update(ctx context.Context, sub *models.AlertSubscription, enabled *bool, settings *models.Settings) error
	Delete(ctx context.Context, id uint) error
}

type subscriptionRepo struct {
	db  *gorm.DB
	log *log.Logger
}

func NewSubscriptionRepo(db *gorm.DB) SubscriptionRepo {
	return &subscriptionRepo{
		db:  db,
		log: log.Default().Named("subscription_repo"),
	}
}

// Create inserts sub. A second subscription for the same user, device scope
// and kind fails with ErrDuplicate.
func (r *subscriptionRepo) Create(ctx context.Context, sub *models.AlertSubscription) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(sub).Error; err != nil {
		return translate(err)
	}
	return nil
}

func (r *subscriptionRepo) GetByID(ctx context.Context, id uint) (*models.AlertSubscription, error) {
	var sub models.AlertSubscription
	err := r.db.WithContext(ctx).
		Preload("User").
		Preload("Device").
		First(&sub, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &sub, nil
}

func (r *subscriptionRepo) ListByUser(ctx context.Context, userID uint) ([]models.AlertSubscription, error) {
	var out []models.AlertSubscription
	err := r.db.WithContext(ctx).
		Preload("Device").
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListEnabled returns every enabled subscription with its owner and bound
// device loaded, in id order.
func (r *subscriptionRepo) ListEnabled(ctx context.Context) ([]models.AlertSubscription, error) {
	var out []models.AlertSubscription
	err := r.db.WithContext(ctx).
		Preload("User").
		Preload("Device").
		Where("enabled = ?", true).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list enabled subscriptions")
	}
	return out, nil
}

// Update changes only the enabled flag and the settings; nil arguments are
// left untouched.
func (r *subscriptionRepo) Update(ctx context.Context, sub *models.AlertSubscription, enabled *bool, settings *models.Settings) error {
	updates := map[string]interface{}{}
	if enabled != nil {
		updates["enabled"] = *enabled
	}
	if settings != nil {
		updates["settings"] = datatypes.NewJSONType(*settings)
	}
	if len(updates) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Model(sub).Updates(updates).Error; err != nil {
		return translate(err)
	}
	if enabled != nil {
		sub.Enabled = *enabled
	}
	if settings != nil {
		sub.Settings = datatypes.NewJSONType(*settings)
	}
	return nil
}

// Delete removes the subscription and every alert log it owns.
func (r *subscriptionRepo) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		logs := tx.Where("alert_subscription_id = ?", id).Delete(&models.AlertLog{})
		if logs.Error != nil {
			return logs.Error
		}
		res := tx.Delete(&models.AlertSubscription{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		r.log.Info("Deleted alert subscription",
			zap.Uint("subscription_id", id),
			zap.Int64("alert_logs", logs.RowsAffected),
		)
		return nil
	})
}
