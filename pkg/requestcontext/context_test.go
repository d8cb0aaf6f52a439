package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	id "timevault/pkg/domain"
)

func TestAccessors_Defaults(t *testing.T) {
	ctx := context.Background()

	assert.True(t, Identity(ctx).IsNil())
	assert.Empty(t, RequestID(ctx))
	assert.Empty(t, ClientIP(ctx))
	assert.Empty(t, Client(ctx))
	assert.WithinDuration(t, time.Now(), Now(ctx), time.Second)
}

func TestAccessors_RoundTrip(t *testing.T) {
	caller := id.NewIdentity()
	fixed := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)

	ctx := WithIdentity(context.Background(), caller)
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithTime(ctx, fixed)
	ctx = WithClientMetadata(ctx, "10.0.0.1", "curl/8.4.0", "curl 8.4.0")

	assert.Equal(t, caller, Identity(ctx))
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, fixed, Now(ctx))
	assert.Equal(t, "10.0.0.1", ClientIP(ctx))
	assert.Equal(t, "curl/8.4.0", UserAgent(ctx))
	assert.Equal(t, "curl 8.4.0", Client(ctx))
}
