// Package miscellaneous contributes fun commands.
package miscellaneous

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/keshon/aegistrate/internal/command"
	"github.com/keshon/aegistrate/internal/plugin"
	"github.com/keshon/aegistrate/pkg/cmd"
)

const (
	defaultSides = 6
	maxSides     = 1000
	maxDice      = 20
)

// Roller returns a number in [1, sides].
type Roller func(sides int) int

func defaultRoller(sides int) int { return rand.IntN(sides) + 1 }

// Contribution returns roll. A nil roller uses math/rand.
func Contribution(roll Roller) command.Contribution {
	if roll == nil {
		roll = defaultRoller
	}
	return func() []command.Descriptor {
		return []command.Descriptor{{
			Name:        "roll",
			Description: "Rolls one or more dice.",
			Plugin:      plugin.Miscellaneous,
			Cooldown:    5 * time.Second,
			Options: []command.Option{
				{Name: "sides", Description: "Sides per die (2-1000, default 6).", Type: command.OptionInteger},
				{Name: "dice", Description: "How many dice to roll (1-20, default 1).", Type: command.OptionInteger},
			},
			Handler: rollHandler(roll),
		}}
	}
}

func rollHandler(roll Roller) cmd.HandlerFunc {
	return func(ctx context.Context, inv *cmd.Invocation) error {
		sides, dice := int64(defaultSides), int64(1)
		if n, ok := inv.Args.Int("sides"); ok {
			sides = n
		}
		if n, ok := inv.Args.Int("dice"); ok {
			dice = n
		}
		if sides < 2 || sides > maxSides || dice < 1 || dice > maxDice {
			return inv.Respond(ctx, cmd.Response{
				Description: fmt.Sprintf("Roll between 1 and %d dice with 2 to %d sides.", maxDice, maxSides),
				Ephemeral:   true,
				Error:       true,
			})
		}

		results := make([]string, dice)
		total := 0
		for i := range results {
			n := roll(int(sides))
			total += n
			results[i] = strconv.Itoa(n)
		}

		resp := cmd.Response{Title: fmt.Sprintf("🎲 %dd%d", dice, sides), Description: fmt.Sprintf("**%d**", total)}
		if dice > 1 {
			resp.Footer = strings.Join(results, " + ")
		}
		return inv.Respond(ctx, resp)
	}
}
