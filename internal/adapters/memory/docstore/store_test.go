package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	docstoreport "github.com/travelmap/ratings-api/internal/ports/out/docstore"
)

func TestStore_ConcurrentWritesToSiblings(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := docstoreport.Join("userCountries", "u1", fmt.Sprintf("C%02d", i))
			if err := s.Write(ctx, p, map[string]any{"n": i}); err != nil {
				t.Errorf("Write() err=%v", err)
			}
		}(i)
	}
	wg.Wait()

	raw, ok, err := s.Read(ctx, docstoreport.UserCountriesPath("u1"))
	if err != nil || !ok {
		t.Fatalf("Read() ok=%v err=%v", ok, err)
	}
	var children map[string]any
	if err := json.Unmarshal(raw, &children); err != nil {
		t.Fatalf("Unmarshal() err=%v", err)
	}
	if len(children) != 50 {
		t.Fatalf("len(children)=%d, want 50", len(children))
	}
}
