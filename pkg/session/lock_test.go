package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/sealgate/pkg/adapters/memory"
	"github.com/aretw0/sealgate/pkg/adapters/signer"
	"github.com/aretw0/sealgate/pkg/domain"
)

func TestService_LockLifecycle(t *testing.T) {
	digest, _ := signer.NewDigest("")
	svc := NewService(memory.NewStore(), digest, WithSerializedKeys())
	ctx := context.Background()
	owner := domain.AuthenticatedIdentity{ServiceUUID: "svc"}
	count := 2000

	// 1. Create and Close many containers
	for i := 0; i < count; i++ {
		id := fmt.Sprintf("container-%d", i)
		_, _ = svc.Upload(ctx, owner, id, &domain.AsicGenericContainer{ContainerName: "c.asics", Container: []byte("x")})
		_ = svc.Close(ctx, owner, "", id)
	}

	// 2. No lock entry may outlive its holders
	if n := svc.locks.len(); n != 0 {
		t.Errorf("Memory Leak Detected: %d locks remaining in memory after Close", n)
	}
}
