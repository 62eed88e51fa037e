package postgres

import "time"

// ClientModel is a tenant owning one or more services.
type ClientModel struct {
	UUID      string    `gorm:"primaryKey;size:36"`
	Name      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (ClientModel) TableName() string { return "sealgate_clients" }

// ServiceModel is a caller registered under a client. SigningSecret holds
// the sealed secret, never the plaintext.
type ServiceModel struct {
	UUID          string      `gorm:"primaryKey;size:36"`
	ClientUUID    string      `gorm:"size:36;index;not null"`
	Client        ClientModel `gorm:"foreignKey:ClientUUID;references:UUID"`
	Name          string      `gorm:"not null"`
	ServiceType   string      `gorm:"not null;default:REST"`
	SigningSecret string      `gorm:"not null"`
	SmartIDName   string
	SmartIDUUID   string
	MobileIDName  string
	MobileIDUUID  string
	Roles         string
	Active        bool      `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (ServiceModel) TableName() string { return "sealgate_services" }
