package user

import (
	"github.com/google/wire"
	"gorm.io/gorm"
)

// ProvideRepository is a Wire provider function that creates a GormRepository
func ProvideRepository(db *gorm.DB) Repository {
	return NewGormRepository(db)
}

func ProvideJSONHandler(repo Repository) *JSONHandler {
	return NewJSONHandler(repo)
}

var Set = wire.NewSet(ProvideRepository, ProvideJSONHandler)
