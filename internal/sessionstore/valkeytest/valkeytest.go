// Package valkeytest starts a disposable Valkey container for integration
// tests against ValkeyStore.
package valkeytest

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/valkey-io/valkey-go"
)

// NewTestValkey starts a Valkey container and returns its address and a
// teardown func the caller must invoke (typically via defer).
func NewTestValkey(t testing.TB) (address string, done func()) {
	t.Helper()
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "valkey/valkey:9-alpine3.23",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("* Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start valkey server: %v", err)
	}

	ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	address, err = container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("failed to get valkey address: %v", err)
	}

	t.Logf("started valkey server at %s in %v", address, time.Since(start))

	if err := ping(ctx, address); err != nil {
		t.Fatalf("failed to ping valkey server: %v", err)
	}

	done = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := container.Terminate(ctx); err != nil {
			t.Fatalf("failed to stop valkey: %v", err)
		}
	}
	return
}

func ping(ctx context.Context, address string) error {
	client, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{address}})
	if err != nil {
		return err
	}
	defer client.Close()

	cmd := client.B().Ping().Build()
	for err = client.Do(ctx, cmd).Error(); ctx.Err() == nil && err != nil; err = client.Do(ctx, cmd).Error() {
		time.Sleep(100 * time.Millisecond)
	}
	return ctx.Err()
}
