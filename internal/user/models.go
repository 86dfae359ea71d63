package user

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID                  string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Email               string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Name                *string   `gorm:"type:varchar(100)" json:"name,omitempty"`
	PasswordHash        string    `gorm:"not null" json:"-"`
	NotificationEnabled bool      `gorm:"not null;default:true" json:"notificationEnabled"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
