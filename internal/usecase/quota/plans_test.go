package quota

import (
	"context"
	"testing"
	"time"

	domquota "github.com/kailas-cloud/emsal/internal/domain/quota"
)

func TestStaticPlans_Resolve(t *testing.T) {
	p := mustPlans(map[string]string{"u-pro": "basic"}, "trial")
	ctx := context.Background()

	got, _ := p.Resolve(ctx, "u-pro")
	if got.Name != "basic" {
		t.Errorf("expected basic, got %s", got.Name)
	}
	got, _ = p.Resolve(ctx, "someone-else")
	if got.Name != "trial" {
		t.Errorf("expected default trial, got %s", got.Name)
	}
}

func TestNewStaticPlans_Errors(t *testing.T) {
	valid := []domquota.Plan{{Name: "a", Limit: 1, Window: domquota.WindowDay}}
	tests := []struct {
		name  string
		plans []domquota.Plan
		users map[string]string
		def   string
	}{
		{"unknown default", valid, nil, "b"},
		{"unknown user plan", valid, map[string]string{"u": "b"}, "a"},
		{"invalid plan", []domquota.Plan{{Name: "a", Window: domquota.WindowFixed}}, nil, "a"},
		{"duplicate", append(valid, domquota.Plan{Name: "a", Window: domquota.WindowDay, Duration: time.Hour}), nil, "a"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewStaticPlans(tc.plans, tc.users, tc.def); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
