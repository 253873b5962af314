package history

import (
	"context"
	"testing"
)

func TestNilStoreIsNoOp(t *testing.T) {
	var s *Store
	ctx := context.Background()

	if err := s.Save(ctx, Record{RequestHash: "h"}); err != nil {
		t.Errorf("Save on nil store: %v", err)
	}
	rec, err := s.Latest(ctx, "h")
	if err != nil || rec != nil {
		t.Errorf("Latest on nil store = %v, %v; want nil, nil", rec, err)
	}
	records, err := s.List(ctx, 10)
	if err != nil || records != nil {
		t.Errorf("List on nil store = %v, %v; want nil, nil", records, err)
	}
}
