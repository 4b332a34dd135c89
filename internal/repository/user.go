package repository

import (
	"context"

	"github.com/okieraised/thermostat-alerts/internal/infrastructure/log"
	"github.com/okieraised/thermostat-alerts/internal/models"
	"gorm.io/gorm"
)

type UserRepo interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

type userRepo struct {
	db  *gorm.DB
	log *log.Logger
}

func NewUserRepo(db *gorm.DB) UserRepo {
	return &userRepo{
		db:  db,
		log: log.Default().Named("user_repo"),
	}
}

func (r *userRepo) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}
