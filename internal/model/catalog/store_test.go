package catalog

import "testing"

func TestMemoryStoreFindByID(t *testing.T) {
	store := NewMemoryStore(Seed())

	if _, ok := store.FindByID("gpt-4"); !ok {
		t.Fatal("expected gpt-4 in catalog")
	}
	if _, ok := store.FindByID("gpt-3.5-turbo"); !ok {
		t.Fatal("expected gpt-3.5-turbo in catalog")
	}
	if _, ok := store.FindByID("davinci"); ok {
		t.Fatal("unexpected model davinci")
	}
}

func TestMemoryStoreDefault(t *testing.T) {
	if got := NewMemoryStore(Seed()).Default(); got.ID != "gpt-4" {
		t.Fatalf("unexpected default: %s", got.ID)
	}
	if got := NewMemoryStore(nil).Default(); got.ID != "" {
		t.Fatalf("expected empty default, got %s", got.ID)
	}
}

func TestWithDefault(t *testing.T) {
	items := WithDefault(Seed(), "gpt-3.5-turbo")
	store := NewMemoryStore(items)
	if got := store.Default(); got.ID != "gpt-3.5-turbo" {
		t.Fatalf("unexpected default: %s", got.ID)
	}

	unchanged := WithDefault(Seed(), "unknown")
	if got := NewMemoryStore(unchanged).Default(); got.ID != "gpt-4" {
		t.Fatalf("unknown id should keep default, got %s", got.ID)
	}
}

func TestListReturnsCopy(t *testing.T) {
	store := NewMemoryStore(Seed())
	list := store.List()
	list[0].ID = "mutated"
	if _, ok := store.FindByID("gpt-4"); !ok {
		t.Fatal("List must not expose internal slice")
	}
}
