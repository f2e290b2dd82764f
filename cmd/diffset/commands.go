package main

import (
	"github.com/fwojciec/diffset"
	"github.com/fwojciec/diffset/upload"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// skipWire marks commands that only need the parser.
const skipWire = "parser-only"

// newRootCmd builds the command tree around app. Collaborators already set
// on app are kept, which lets tests inject doubles.
func newRootCmd(app *App) *cobra.Command {
	v := viper.New()
	var cleanup func()

	root := &cobra.Command{
		Use:           "diffset",
		Short:         "Parse uploaded diffs and validate them against a repository.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if app.Parser != nil {
				return nil
			}
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			if cmd.Annotations[skipWire] != "" {
				wireParser(cfg, app)
				return nil
			}
			cleanup, err = wire(cmd.Context(), cfg, app)
			return err
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if cleanup != nil {
				cleanup()
			}
		},
	}
	// Flag registration only fails on programmer error.
	if err := bindFlags(v, root.PersistentFlags()); err != nil {
		panic(err)
	}

	root.AddCommand(
		newParseCmd(app),
		newUploadCmd(app),
		newCommitCmd(app),
		newFinalizeCmd(app),
		newShowCmd(app),
	)
	return root
}

func newParseCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:         "parse [diff-file]",
		Short:       "Parse a diff and list the files it changes",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{skipWire: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := app.ReadDiff(firstArg(args))
			if err != nil {
				return err
			}
			return app.Parse(data)
		},
	}
}

func newUploadCmd(app *App) *cobra.Command {
	var parentPath, basedir, base string
	cmd := &cobra.Command{
		Use:   "upload [diff-file]",
		Short: "Validate a diff against the repository and save it as a new diffset",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := app.ReadDiff(firstArg(args))
			if err != nil {
				return err
			}
			req := upload.Request{Diff: data, Basedir: basedir, BaseCommitID: base}
			if parentPath != "" {
				if req.ParentDiff, err = app.ReadDiff(parentPath); err != nil {
					return err
				}
			}
			return app.Upload(cmd.Context(), req)
		},
	}
	cmd.Flags().StringVar(&parentPath, "parent-diff", "", "diff the main diff is stacked on")
	cmd.Flags().StringVar(&basedir, "basedir", "", "directory the diff's paths are relative to")
	cmd.Flags().StringVar(&base, "base-commit", "", "commit the diff applies to")
	return cmd
}

func newCommitCmd(app *App) *cobra.Command {
	var id, base, basedir string
	var in diffset.CommitInput
	cmd := &cobra.Command{
		Use:   "commit [diff-file]",
		Short: "Add a commit to a diffset, creating one when --diffset is not given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := app.ReadDiff(firstArg(args))
			if err != nil {
				return err
			}
			req := upload.CommitRequest{Diff: data, Basedir: basedir, Commit: in}
			return app.Commit(cmd.Context(), id, base, req)
		},
	}
	f := cmd.Flags()
	f.StringVar(&id, "diffset", "", "diffset to add the commit to")
	f.StringVar(&base, "base-commit", "", "base commit of a new diffset")
	f.StringVar(&basedir, "basedir", "", "directory the diff's paths are relative to")
	f.StringVar(&in.CommitID, "commit-id", "", "ID of the commit")
	f.StringVar(&in.ParentID, "parent-id", "", "ID of the commit's parent")
	f.StringVar(&in.Message, "message", "", "commit message")
	f.StringVar(&in.AuthorName, "author-name", "", "author name")
	f.StringVar(&in.AuthorEmail, "author-email", "", "author email")
	f.StringVar(&in.AuthorDate, "author-date", "", "author date (ISO 8601)")
	f.StringVar(&in.CommitterName, "committer-name", "", "committer name (defaults to the author's)")
	f.StringVar(&in.CommitterEmail, "committer-email", "", "committer email (defaults to the author's)")
	f.StringVar(&in.CommitterDate, "committer-date", "", "committer date (ISO 8601, defaults to the author's)")
	return cmd
}

func newFinalizeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "finalize <diffset-id>",
		Short: "Publish a diffset so no more commits can be added",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Finalize(cmd.Context(), args[0])
		},
	}
}

func newShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <diffset-id> [path...]",
		Short: "Print a stored diffset, or some of its files, as a git diff",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Show(cmd.Context(), args[0], args[1:]...)
		},
	}
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
