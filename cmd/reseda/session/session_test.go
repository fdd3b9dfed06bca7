package session

import (
	"testing"

	"github.com/bennjii/reseda"
)

func TestIdentity(t *testing.T) {
	configured := reseda.Identity{ID: "user-1", Name: "ben"}

	got, err := identity(configured, "")
	if err != nil || got.ID != "user-1" {
		t.Fatalf("identity() = %+v, %v", got, err)
	}

	got, err = identity(configured, "  user-2 ")
	if err != nil || got.ID != "user-2" || got.Name != "ben" {
		t.Fatalf("identity() with override = %+v, %v", got, err)
	}

	if _, err := identity(reseda.Identity{}, ""); err == nil {
		t.Fatal("identity() without id succeeded")
	}
}
