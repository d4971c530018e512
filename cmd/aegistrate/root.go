package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/keshon/aegistrate/internal/command"
	"github.com/keshon/aegistrate/internal/config"
	"github.com/keshon/aegistrate/internal/discord"
	"github.com/keshon/aegistrate/internal/plugins"
	"github.com/keshon/aegistrate/internal/registration"
)

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "aegistrate",
		Short:         "A moderation bot for Discord servers",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(c *cobra.Command, _ []string) error {
			return runBot(c.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the TOML config file")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Connect to Discord and serve commands (default)",
			Args:  cobra.NoArgs,
			RunE: func(c *cobra.Command, _ []string) error {
				return runBot(c.Context(), configPath)
			},
		},
		newCatalogCommand(&configPath),
		newConfigCommand(&configPath),
	)
	return root
}

// runBot runs until SIGINT or SIGTERM.
func runBot(ctx context.Context, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, configPath)
}

func newCatalogCommand(configPath *string) *cobra.Command {
	var diff bool
	c := &cobra.Command{
		Use:   "catalog",
		Short: "List the commands the bot registers",
		Long: "List the commands the bot registers. With --diff, compare them with " +
			"the commands currently registered on Discord without changing anything.",
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			catalog, err := buildCatalog(plugins.Deps{})
			if err != nil {
				return err
			}
			if !diff {
				return printCatalog(c.OutOrStdout(), catalog)
			}

			cfg, err := (&config.Resolver{Path: *configPath}).Resolve(c.Context())
			if err != nil {
				return err
			}
			s, err := discordgo.New("Bot " + cfg.BotToken)
			if err != nil {
				return fmt.Errorf("failed to create session: %w", err)
			}
			plan, err := registration.New(discord.NewPlatform(s, cfg.GuildID)).Plan(c.Context(), catalog)
			if err != nil {
				return err
			}
			return printPlan(c.OutOrStdout(), plan)
		},
	}
	c.Flags().BoolVar(&diff, "diff", false, "show the registration plan against Discord")
	return c
}

func newConfigCommand(configPath *string) *cobra.Command {
	var template bool
	c := &cobra.Command{
		Use:   "config",
		Short: "Show the resolved configuration with the token redacted",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			if template {
				body, err := config.Template(nil)
				if err != nil {
					return err
				}
				_, err = c.OutOrStdout().Write(body)
				return err
			}
			cfg, err := (&config.Resolver{Path: *configPath}).Resolve(c.Context())
			if err != nil {
				return err
			}
			_, err = io.WriteString(c.OutOrStdout(), cfg.String())
			return err
		},
	}
	c.Flags().BoolVar(&template, "template", false, "print a config file with default values")
	return c
}

// buildCatalog assembles the catalog and logs its warnings.
func buildCatalog(deps plugins.Deps) (*command.Catalog, error) {
	catalog, warnings, err := command.BuildCatalog(plugins.Contributions(deps))
	for _, w := range warnings {
		log.Warn().Str("plugin", w.Plugin.String()).Str("kind", w.Kind).Msg(w.String())
	}
	if err != nil {
		return nil, fmt.Errorf("build command catalog: %w", err)
	}
	return catalog, nil
}

func printCatalog(w io.Writer, catalog *command.Catalog) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COMMAND\tPLUGIN\tCOOLDOWN\tOPTIONS")
	for _, d := range catalog.All() {
		opts := make([]string, 0, len(d.Options))
		for _, o := range d.Options {
			name := o.Name + ":" + o.Type.String()
			if o.Required {
				name += "*"
			}
			opts = append(opts, name)
		}
		cooldown := "-"
		if d.Cooldown > 0 {
			cooldown = d.Cooldown.String()
		}
		fmt.Fprintf(tw, "/%s\t%s\t%s\t%s\n", d.Name, d.Plugin, cooldown, strings.Join(opts, " "))
	}
	return tw.Flush()
}

func printPlan(w io.Writer, plan *registration.Plan) error {
	if plan.Len() == 0 {
		_, err := fmt.Fprintf(w, "up to date (%d commands)\n", len(plan.Unchanged))
		return err
	}
	for _, a := range plan.Actions() {
		if _, err := fmt.Fprintf(w, "%-6s /%s\n", a.Op, a.Name); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d unchanged\n", len(plan.Unchanged))
	return err
}
