package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"timevault/internal/capsule/address"
	id "timevault/pkg/domain"
)

func TestKeys(t *testing.T) {
	addr, _ := address.ForCapsule(id.NewIdentity(), 0)

	assert.Nil(t, Keys(context.Background()))

	ctx := WithKeys(context.Background(), CapsuleKey(addr), RegistryKey, RegistryKey)
	assert.Equal(t, []string{CapsuleKey(addr), RegistryKey}, Keys(ctx))
}
