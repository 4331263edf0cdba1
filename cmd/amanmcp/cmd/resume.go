package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ue5query/internal/config"
	"github.com/Aman-CERP/ue5query/internal/session"
)

func newResumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume NAME",
		Short: "Resume a saved session",
		Long: `Resume a previously saved session.

This marks the session as recently used and prints the commands to query
its project, starting the background daemon first if it isn't already
running so the first search doesn't pay embedder startup cost.

If the project directory no longer exists, an error is returned with
instructions to delete the orphaned session.

Example:
  # Resume the work-api session
  amanmcp resume work-api

  # List available sessions first
  amanmcp sessions`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResume(cmd, args[0])
		},
	}

	return cmd
}

func runResume(cmd *cobra.Command, name string) error {
	cfg := config.NewConfig()

	mgr, err := session.NewManager(session.ManagerConfig{
		StoragePath: cfg.Sessions.StoragePath,
		MaxSessions: cfg.Sessions.MaxSessions,
	})
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}

	sess, err := mgr.Get(name)
	if err != nil {
		return fmt.Errorf("session not found: %s\n\nRun 'amanmcp sessions' to list available sessions", name)
	}

	if _, err := os.Stat(sess.ProjectPath); os.IsNotExist(err) {
		return fmt.Errorf("project directory no longer exists: %s\n\nTo remove this session, run:\n  amanmcp sessions delete %s",
			sess.ProjectPath, name)
	}

	if err := mgr.Save(sess); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	dataDir := filepath.Join(sess.ProjectPath, ".ue5query")
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Session '%s' points to %s, which has not been indexed yet.\n", name, sess.ProjectPath)
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Run 'amanmcp index %s' first.\n", sess.ProjectPath)
		return nil
	}

	if err := runDaemonStart(cmd.Context(), cmd, false); err != nil {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: could not start daemon: %v\n", err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Resumed session '%s' for %s\n", name, sess.ProjectPath)
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Search it with:\n  cd %s && amanmcp search <question>\n", sess.ProjectPath)

	return nil
}
