package health

import (
	"context"
	"errors"
	"testing"

	"github.com/vocalise-app/vocalise/internal/storage/storagetest"
)

func TestStorageChecker(t *testing.T) {
	t.Parallel()
	store := storagetest.New()
	c := Storage(store)
	if c.Name != "storage" {
		t.Fatalf("name = %q", c.Name)
	}
	if err := c.Check(context.Background()); err != nil {
		t.Fatalf("healthy backend reported unhealthy: %v", err)
	}

	store.GetErr = errors.New("disk gone")
	if err := c.Check(context.Background()); err == nil {
		t.Fatal("failing backend reported healthy")
	}
}

func TestCaptureChecker(t *testing.T) {
	t.Parallel()
	ok := Capture(func() error { return nil })
	if err := ok.Check(context.Background()); err != nil {
		t.Fatalf("ready source reported unhealthy: %v", err)
	}
	bad := Capture(func() error { return errors.New("no input device") })
	if err := bad.Check(context.Background()); err == nil {
		t.Fatal("broken source reported healthy")
	}
}
