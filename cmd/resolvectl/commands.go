package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/illegalcall/profile-resolver/internal/models"
	"github.com/illegalcall/profile-resolver/internal/resolver"
)

func newRootCmd(manager *resolver.Manager) *cobra.Command {
	root := &cobra.Command{
		Use:          "resolvectl",
		Short:        "Resolve creator profiles across data providers",
		SilenceUsage: true,
	}
	root.AddCommand(newResolveCmd(manager), newProvidersCmd(manager))
	return root
}

func newResolveCmd(manager *resolver.Manager) *cobra.Command {
	var (
		platform string
		prefer   string
		timeout  time.Duration
		verbose  bool
	)

	cmd := &cobra.Command{
		Use:   "resolve <username>",
		Short: "Resolve one profile and print it as JSON",
		Long: `Resolve a creator profile by walking the configured providers in
priority order. The first provider that answers wins.

Exit status is non-zero when no provider could resolve the profile; the
per-provider errors are printed to stderr.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := models.ParsePlatform(platform)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			res, err := manager.ResolveDetailed(ctx, resolver.Request{
				Username:  args[0],
				Platform:  p,
				Preferred: models.ProviderSource(strings.ToLower(prefer)),
			})
			if err != nil {
				_, body := resolver.Describe(err)
				for _, pe := range body.ProviderErrors {
					fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s %s\n", pe.Provider, pe.Code, pe.Message)
				}
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if verbose {
				return enc.Encode(models.ResolveResponse{
					Profile:  res.Profile,
					Attempts: resolver.AttemptBodies(res.Attempts),
				})
			}
			return enc.Encode(res.Profile)
		},
	}

	cmd.Flags().StringVarP(&platform, "platform", "p", "instagram", "platform: instagram, tiktok or youtube")
	cmd.Flags().StringVar(&prefer, "prefer", "", "provider to try first")
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "overall resolution deadline")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "include the provider attempt log")
	return cmd
}

func newProvidersCmd(manager *resolver.Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List registered providers in priority order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tPLATFORMS\tCONFIGURED")
			for _, p := range manager.Providers() {
				names := make([]string, 0, len(p.Platforms()))
				for _, platform := range p.Platforms() {
					names = append(names, string(platform))
				}
				fmt.Fprintf(w, "%s\t%s\t%t\n", p.Name(), strings.Join(names, ","), p.Configured())
			}
			return w.Flush()
		},
	}
}
