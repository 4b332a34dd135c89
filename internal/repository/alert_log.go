package repository

import (
	"context"
	"time"

	"github.com/okieraised/thermostat-alerts/internal/infrastructure/log"
	"github.com/okieraised/thermostat-alerts/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AlertLogRepo interface {
	Create(ctx context.Context, entry *models.AlertLog) error
	FindOpenSince(ctx context.Context, subscriptionID uint, deviceID *uint, since time.Time) (*models.AlertLog, error)
	ResolveOpen(ctx context.Context, subscriptionID uint, at time.Time) (int64, error)
	GetByID(ctx context.Context, id uint) (*models.AlertLog, error)
	ListForUser(ctx context.Context, userID uint, limit int) ([]models.AlertLog, error)
}

type alertLogRepo struct {
	db  *gorm.DB
	log *log.Logger
}

func NewAlertLogRepo(db *gorm.DB) AlertLogRepo {
	return &alertLogRepo{
		db:  db,
		log: log.Default().Named("alert_log_repo"),
	}
}

// Create inserts entry. A dedup key collision is reported as ErrDuplicate.
func (r *alertLogRepo) Create(ctx context.Context, entry *models.AlertLog) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(entry).Error; err != nil {
		return translate(err)
	}
	return nil
}

// FindOpenSince returns an unresolved episode for the subscription and
// device triggered after since, or nil when there is none.
func (r *alertLogRepo) FindOpenSince(ctx context.Context, subscriptionID uint, deviceID *uint, since time.Time) (*models.AlertLog, error) {
	q := r.db.WithContext(ctx).
		Where("alert_subscription_id = ?", subscriptionID).
		Where("resolved_at IS NULL").
		Where("triggered_at > ?", since.UTC())
	if deviceID == nil {
		q = q.Where("device_id IS NULL")
	} else {
		q = q.Where("device_id = ?", *deviceID)
	}

	var out []models.AlertLog
	if err := q.Order("triggered_at DESC").Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

// ResolveOpen stamps every unresolved episode of the subscription and clears
// its dedup key. Already resolved rows are left alone.
func (r *alertLogRepo) ResolveOpen(ctx context.Context, subscriptionID uint, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.AlertLog{}).
		Where("alert_subscription_id = ? AND resolved_at IS NULL", subscriptionID).
		Updates(map[string]interface{}{
			"resolved_at": at.UTC(),
			"dedup_key":   gorm.Expr("NULL"),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *alertLogRepo) GetByID(ctx context.Context, id uint) (*models.AlertLog, error) {
	var entry models.AlertLog
	err := r.db.WithContext(ctx).
		Preload("Subscription.User").
		Preload("Device").
		First(&entry, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &entry, nil
}

// ListForUser returns the latest episodes across the user's subscriptions.
func (r *alertLogRepo) ListForUser(ctx context.Context, userID uint, limit int) ([]models.AlertLog, error) {
	subIDs := r.db.Model(&models.AlertSubscription{}).Select("id").Where("user_id = ?", userID)

	var out []models.AlertLog
	err := r.db.WithContext(ctx).
		Preload("Subscription").
		Preload("Device").
		Where("alert_subscription_id IN (?)", subIDs).
		Order("triggered_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
