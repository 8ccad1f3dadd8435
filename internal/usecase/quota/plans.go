package quota

import (
	"context"
	"fmt"

	domquota "github.com/kailas-cloud/emsal/internal/domain/quota"
)

// StaticPlans resolves plans from a fixed user → plan table with a default.
type StaticPlans struct {
	plans       map[string]domquota.Plan
	users       map[string]string
	defaultPlan string
}

// NewStaticPlans validates the plan table and builds a resolver.
func NewStaticPlans(plans []domquota.Plan, users map[string]string, defaultPlan string) (*StaticPlans, error) {
	byName := make(map[string]domquota.Plan, len(plans))
	for _, p := range plans {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := byName[p.Name]; dup {
			return nil, fmt.Errorf("duplicate plan %q", p.Name)
		}
		byName[p.Name] = p
	}
	if _, ok := byName[defaultPlan]; !ok {
		return nil, fmt.Errorf("default plan %q is not defined", defaultPlan)
	}
	for user, plan := range users {
		if _, ok := byName[plan]; !ok {
			return nil, fmt.Errorf("user %q: plan %q is not defined", user, plan)
		}
	}
	return &StaticPlans{plans: byName, users: users, defaultPlan: defaultPlan}, nil
}

// Resolve returns the user's plan, or the default plan for unknown users.
func (s *StaticPlans) Resolve(_ context.Context, userID string) (domquota.Plan, error) {
	name, ok := s.users[userID]
	if !ok {
		name = s.defaultPlan
	}
	return s.plans[name], nil
}
