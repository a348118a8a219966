package mem_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/authsite/authsite/internal/store"
	"github.com/authsite/authsite/internal/store/mem"
)

func TestCreateDuplicateEmail(t *testing.T) {
	s := mem.New()
	ctx := context.Background()

	first := &store.Identity{Email: "a@x.com", PasswordHash: "hash1"}
	if err := s.Create(ctx, first); err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	second := &store.Identity{Email: "a@x.com", PasswordHash: "hash2"}
	if err := s.Create(ctx, second); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// The original record must be untouched by the failed attempt.
	got, err := s.ByEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("ByEmail failed: %v", err)
	}
	if got.ID != first.ID || got.PasswordHash != "hash1" {
		t.Errorf("original identity modified: got %+v", got)
	}
}

func TestByEmailNotFound(t *testing.T) {
	s := mem.New()
	if _, err := s.ByEmail(context.Background(), "nobody@x.com"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindOrCreate(t *testing.T) {
	s := mem.New()
	ctx := context.Background()

	first, created, err := s.FindOrCreate(ctx, store.ProviderGithub, "gh-42")
	if err != nil {
		t.Fatalf("FindOrCreate failed: %v", err)
	}
	if !created {
		t.Error("expected first call to create")
	}
	if first.GithubID != "gh-42" {
		t.Errorf("expected github id gh-42, got %q", first.GithubID)
	}

	second, created, err := s.FindOrCreate(ctx, store.ProviderGithub, "gh-42")
	if err != nil {
		t.Fatalf("second FindOrCreate failed: %v", err)
	}
	if created {
		t.Error("expected second call to find, not create")
	}
	if second.ID != first.ID {
		t.Errorf("expected same identity, got %s and %s", first.ID, second.ID)
	}
}

func TestFindOrCreateUnknownProvider(t *testing.T) {
	s := mem.New()
	if _, _, err := s.FindOrCreate(context.Background(), "myspace", "u1"); !errors.Is(err, store.ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

// TestFindOrCreateConcurrent races first-time logins with the same subject
// id: exactly one record may be created and every caller must observe it.
func TestFindOrCreateConcurrent(t *testing.T) {
	s := mem.New()
	ctx := context.Background()

	const callers = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = make(map[string]bool)
		creates int
	)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			identity, created, err := s.FindOrCreate(ctx, store.ProviderGoogle, "sub-1")
			if err != nil {
				t.Errorf("FindOrCreate failed: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[identity.ID] = true
			if created {
				creates++
			}
		}()
	}
	wg.Wait()

	if len(ids) != 1 {
		t.Errorf("expected all callers to observe one identity, got %d", len(ids))
	}
	if creates != 1 {
		t.Errorf("expected exactly one creation, got %d", creates)
	}
}

func TestProviderIdentitiesIndependentOfEmail(t *testing.T) {
	s := mem.New()
	ctx := context.Background()

	if err := s.Create(ctx, &store.Identity{Email: "a@x.com", PasswordHash: "h"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	external, _, err := s.FindOrCreate(ctx, store.ProviderGoogle, "sub-9")
	if err != nil {
		t.Fatalf("FindOrCreate failed: %v", err)
	}

	local, err := s.ByEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("ByEmail failed: %v", err)
	}
	if local.ID == external.ID {
		t.Error("provider identity must not merge with email identity")
	}
}
