package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/sealgate/internal/secrets"
	"github.com/aretw0/sealgate/pkg/domain"
	"github.com/aretw0/sealgate/pkg/ports"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Directory implements ports.IdentityDirectory over postgres.
type Directory struct {
	db     *gorm.DB
	sealer *secrets.Sealer
}

var _ ports.IdentityDirectory = (*Directory)(nil)

// Open connects to postgres with gorm's logger silenced.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return db, nil
}

// New creates a directory. The sealer opens signing secrets on lookup.
func New(db *gorm.DB, sealer *secrets.Sealer) *Directory {
	return &Directory{db: db, sealer: sealer}
}

// AutoMigrate creates or updates the directory tables.
func (d *Directory) AutoMigrate(ctx context.Context) error {
	return d.db.WithContext(ctx).AutoMigrate(&ClientModel{}, &ServiceModel{})
}

// Lookup loads a service with its client and opens its signing secret.
func (d *Directory) Lookup(ctx context.Context, serviceUUID string) (domain.ServiceIdentity, error) {
	var m ServiceModel
	err := d.db.WithContext(ctx).Preload("Client").First(&m, "uuid = ?", serviceUUID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ServiceIdentity{}, domain.ErrIdentityNotFound
		}
		return domain.ServiceIdentity{}, fmt.Errorf("query service %s: %w", serviceUUID, err)
	}

	secret, err := d.sealer.OpenString(m.SigningSecret)
	if err != nil {
		return domain.ServiceIdentity{}, fmt.Errorf("open signing secret of %s: %w", serviceUUID, err)
	}

	var roles []string
	if m.Roles != "" {
		roles = strings.Split(m.Roles, ",")
	}
	return domain.ServiceIdentity{
		UUID:          m.UUID,
		ClientName:    m.Client.Name,
		ClientUUID:    m.ClientUUID,
		ServiceName:   m.Name,
		ServiceType:   domain.ServiceType(m.ServiceType),
		SigningSecret: domain.Secret(secret),
		SmartID:       domain.RelyingParty{Name: m.SmartIDName, UUID: m.SmartIDUUID},
		MobileID:      domain.RelyingParty{Name: m.MobileIDName, UUID: m.MobileIDUUID},
		Active:        m.Active,
		Roles:         roles,
	}, nil
}

// AddService registers id, creating its client on first use. The signing
// secret is sealed before it is written. An existing service is replaced.
func (d *Directory) AddService(ctx context.Context, id domain.ServiceIdentity) error {
	if id.UUID == "" || id.ClientUUID == "" {
		return errors.New("service and client uuid are required")
	}
	if len(id.SigningSecret) == 0 {
		return errors.New("signing secret is required")
	}
	sealed, err := d.sealer.SealString(id.SigningSecret)
	if err != nil {
		return fmt.Errorf("seal signing secret: %w", err)
	}
	st := id.ServiceType
	if st == "" {
		st = domain.ServiceTypeREST
	}

	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		client := ClientModel{UUID: id.ClientUUID, Name: id.ClientName}
		if err := tx.Where(ClientModel{UUID: id.ClientUUID}).
			Attrs(ClientModel{Name: id.ClientName}).
			FirstOrCreate(&client).Error; err != nil {
			return fmt.Errorf("upsert client: %w", err)
		}
		svc := ServiceModel{
			UUID:          id.UUID,
			ClientUUID:    client.UUID,
			Name:          id.ServiceName,
			ServiceType:   string(st),
			SigningSecret: sealed,
			SmartIDName:   id.SmartID.Name,
			SmartIDUUID:   id.SmartID.UUID,
			MobileIDName:  id.MobileID.Name,
			MobileIDUUID:  id.MobileID.UUID,
			Roles:         strings.Join(id.Roles, ","),
			Active:        id.Active,
		}
		// Omit the association so the client row is not re-upserted.
		return tx.Omit("Client").Clauses(clause.OnConflict{UpdateAll: true}).Create(&svc).Error
	})
}

// SetActive enables or disables a service.
func (d *Directory) SetActive(ctx context.Context, serviceUUID string, active bool) error {
	res := d.db.WithContext(ctx).Model(&ServiceModel{}).
		Where("uuid = ?", serviceUUID).
		Update("active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrIdentityNotFound
	}
	return nil
}

// Ping checks connectivity.
func (d *Directory) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (d *Directory) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
