package postgres

import (
	"context"
	"testing"

	"github.com/aretw0/sealgate/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestAddService_RequiresIdentifiersAndSecret(t *testing.T) {
	d := New(nil, nil)
	ctx := context.Background()

	assert.Error(t, d.AddService(ctx, domain.ServiceIdentity{ClientUUID: "c", SigningSecret: domain.Secret("k")}))
	assert.Error(t, d.AddService(ctx, domain.ServiceIdentity{UUID: "s", SigningSecret: domain.Secret("k")}))
	assert.Error(t, d.AddService(ctx, domain.ServiceIdentity{UUID: "s", ClientUUID: "c"}))
}

func TestTableNames(t *testing.T) {
	assert.Equal(t, "sealgate_clients", ClientModel{}.TableName())
	assert.Equal(t, "sealgate_services", ServiceModel{}.TableName())
}
