package cache

import (
	"testing"
	"time"
)

func TestCache_SetGet(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	c.Set("key", "value")

	got, ok := c.Get("key")
	if !ok {
		t.Fatal("Expected key to be present")
	}
	if got != "value" {
		t.Errorf("Expected 'value', got: %v", got)
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("Expected missing key to be absent")
	}
}

func TestCache_Expiry(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	c.SetWithTTL("key", "value", 10*time.Millisecond)

	if _, ok := c.Get("key"); !ok {
		t.Fatal("Expected key before expiry")
	}

	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("key"); ok {
		t.Error("Expected key to expire")
	}
}

func TestCache_Delete(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	c.Set("key", "value")
	c.Delete("key")

	if _, ok := c.Get("key"); ok {
		t.Error("Expected key to be deleted")
	}
}
