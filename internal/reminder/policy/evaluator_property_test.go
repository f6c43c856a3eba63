//go:build property

package policy

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	cartdomain "github.com/smallbiznis/recoverly/internal/cart/domain"
	"github.com/smallbiznis/recoverly/internal/config"
	"github.com/smallbiznis/recoverly/internal/reminder/domain"
)

// Property: a cart is first-stage due iff its age strictly exceeds the configured delay.
func TestFirstStageWindowProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("due iff age > delay", prop.ForAll(
		func(delayMinutes int, ageSeconds int) bool {
			f := newFixture(t, config.DefaultRecoveryConfig())
			f.seedTemplates(t, "t1")
			ctx := context.Background()

			if _, err := f.settings.UpdateSettings(ctx, "t1", domain.UpdateSettingsRequest{DelayMinutesFirst: &delayMinutes}); err != nil {
				return false
			}
			age := time.Duration(ageSeconds) * time.Second
			f.addCart(t, "t1", "c", baseTime.Add(-age))

			due, err := f.evaluator.EvaluateDue(ctx, "t1", baseTime)
			if err != nil {
				return false
			}
			expected := age > time.Duration(delayMinutes)*time.Minute
			return (len(due.FirstDue) == 1) == expected
		},
		gen.IntRange(1, 180),
		gen.IntRange(0, 4*3600),
	))

	properties.TestingRun(t)
}

// Property: a cart never appears in both stage lists and the second stage never precedes the first.
func TestStageExclusivityProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	enabled := true
	properties.Property("stages are disjoint", prop.ForAll(
		func(ages []int, marked []bool) bool {
			f := newFixture(t, config.DefaultRecoveryConfig())
			f.seedTemplates(t, "t1")
			ctx := context.Background()
			if _, err := f.settings.UpdateSettings(ctx, "t1", domain.UpdateSettingsRequest{SecondReminderEnabled: &enabled}); err != nil {
				return false
			}

			for i, ageHours := range ages {
				cart := f.addCart(t, "t1", "c"+strconv.Itoa(i), baseTime.Add(-time.Duration(ageHours)*time.Hour))
				if i < len(marked) && marked[i] {
					sentAt := cart.CreatedAt.Add(time.Hour)
					if _, err := f.carts.MarkReminderSent(ctx, cart.ID, cartdomain.StageFirst, sentAt); err != nil {
						return false
					}
				}
			}

			due, err := f.evaluator.EvaluateDue(ctx, "t1", baseTime)
			if err != nil {
				return false
			}
			first := make(map[string]struct{}, len(due.FirstDue))
			for _, c := range due.FirstDue {
				if c.FirstReminderSent {
					return false
				}
				first[c.ID.String()] = struct{}{}
			}
			for _, c := range due.SecondDue {
				if _, dup := first[c.ID.String()]; dup {
					return false
				}
				if !c.FirstReminderSent || c.SecondReminderSent {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(20, gen.IntRange(0, 96)),
		gen.SliceOfN(20, gen.Bool()),
	))

	properties.TestingRun(t)
}
