// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
//
// Error semantics follow the rest of the package: missing rows surface as
// ErrNotFound, all other DB errors are propagated raw.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-wa-gateway/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetUserByPhone fetches the user registered under the given E.164 phone
// number, or ErrNotFound. The caller is expected to have normalized the
// number (channel scheme prefix stripped) before the lookup.
func GetUserByPhone(ctx context.Context, db *gorm.DB, phone string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("phone = ?", phone).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}
