package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jrzesz33/encsys/internal/appcontext"
	"github.com/jrzesz33/encsys/internal/auth"
	"github.com/jrzesz33/encsys/internal/logging"
	"github.com/jrzesz33/encsys/internal/models"
	"github.com/jrzesz33/encsys/internal/params"
	"github.com/jrzesz33/encsys/internal/poller"
	"github.com/jrzesz33/encsys/internal/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// newRootCmd builds the command tree. Flags bind to viper so every flag can
// also be set as ENCSYS_<FLAG>.
func newRootCmd(b backend) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("ENCSYS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault("env", profile.DefaultLabel)
	v.SetDefault("region", "us-east-1")

	root := &cobra.Command{
		Use:           "paramctl",
		Short:         "Inspect and edit deployment parameters",
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelWarn
			if v.GetBool("verbose") {
				level = slog.LevelDebug
			}
			slog.SetDefault(logging.NewWithWriter(cmd.ErrOrStderr(), "paramctl", level))
		},
	}

	root.PersistentFlags().String("app", "", "application name (ENCSYS_APP)")
	root.PersistentFlags().String("env", profile.DefaultLabel, "deployment environment label (ENCSYS_ENV)")
	root.PersistentFlags().String("region", "us-east-1", "AWS region (ENCSYS_REGION)")
	root.PersistentFlags().Bool("verbose", false, "enable debug logging")
	for _, name := range []string{"app", "env", "region", "verbose"} {
		_ = v.BindPFlag(name, root.PersistentFlags().Lookup(name))
	}

	root.AddCommand(
		newGetCmd(v, b),
		newPutCmd(v, b),
		newListCmd(v, b),
		newQueuesCmd(v, b),
		newJobsCmd(v, b),
		newTokenCmd(v, b),
	)
	return root
}

// namespace resolves the target namespace from flags and environment
func namespace(v *viper.Viper) (params.Namespace, error) {
	ac := appcontext.New(appcontext.Props{
		ApplicationName:   v.GetString("app"),
		DeployEnvironment: v.GetString("env"),
	})
	if err := ac.Validate(); err != nil {
		return params.Namespace{}, fmt.Errorf("%w (set --app/--env or ENCSYS_APP/ENCSYS_ENV)", err)
	}
	return params.Namespace{App: ac.AppName(), Env: ac.Env()}, nil
}

func openStore(cmd *cobra.Command, v *viper.Viper, b backend) (params.Store, error) {
	ns, err := namespace(v)
	if err != nil {
		return nil, err
	}
	return b.Store(cmd.Context(), v.GetString("region"), ns)
}

func newGetCmd(v *viper.Viper, b backend) *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Print the value of a parameter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd, v, b)
			if err != nil {
				return err
			}
			value, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), value)
			return err
		},
	}
}

func newPutCmd(v *viper.Viper, b backend) *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "put KEY VALUE",
		Short: "Create or overwrite a parameter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd, v, b)
			if err != nil {
				return err
			}
			if _, _, ok := params.ParseBatchKey(args[0]); ok {
				if _, err := params.DecodeBatchTarget(args[1]); err != nil {
					return fmt.Errorf("refusing to write %s: %w", args[0], err)
				}
			}
			return store.Put(cmd.Context(), args[0], args[1], description)
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "parameter description")
	return cmd
}

func newListCmd(v *viper.Viper, b backend) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every parameter of the environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(cmd, v, b)
			if err != nil {
				return err
			}
			values, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), values)
			}

			keys := make([]string, 0, len(values))
			for k := range values {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", k, values[k]); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as a JSON object")
	return cmd
}

func newQueuesCmd(v *viper.Viper, b backend) *cobra.Command {
	return &cobra.Command{
		Use:   "queues",
		Short: "Count runnable, running and failed jobs of every published queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(cmd, v, b)
			if err != nil {
				return err
			}
			client, err := b.Batch(cmd.Context(), v.GetString("region"))
			if err != nil {
				return err
			}
			summaries, err := poller.New(client, store, 0, slog.Default()).Poll(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), summaries)
		},
	}
}

func newJobsCmd(v *viper.Viper, b backend) *cobra.Command {
	var (
		table  string
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs recorded by the REST trigger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ns, err := namespace(v)
			if err != nil {
				return err
			}
			if table == "" {
				table = fmt.Sprintf("%s-%s-batch-jobs", ns.App, ns.Env)
			}

			var filter *models.JobStatus
			if status != "" {
				s := models.JobStatus(status)
				if !s.IsValid() {
					return fmt.Errorf("invalid status %q", status)
				}
				filter = &s
			}

			repo, err := b.Jobs(cmd.Context(), v.GetString("region"), table)
			if err != nil {
				return err
			}
			jobs, err := repo.ListJobs(cmd.Context(), filter, limit)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), jobs)
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "job ledger table (default <app>-<env>-batch-jobs)")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (submitted, failed)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum jobs to return")
	return cmd
}

func newTokenCmd(v *viper.Viper, b backend) *cobra.Command {
	var (
		secretName string
		subject    string
		ttl        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the REST trigger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ns, err := namespace(v)
			if err != nil {
				return err
			}
			if secretName == "" {
				secretName = fmt.Sprintf("%s/%s/trigger-auth", ns.App, ns.Env)
			}
			key, err := b.SigningKey(cmd.Context(), v.GetString("region"), secretName)
			if err != nil {
				return err
			}
			token, err := auth.Issue(key, subject, ns.App, ns.Env, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&secretName, "secret", "", "signing key secret (default <app>/<env>/trigger-auth)")
	cmd.Flags().StringVar(&subject, "subject", "paramctl", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
