package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/quindo/portal-auth/internal/infra/app"
	"github.com/quindo/portal-auth/internal/infra/config"
	"github.com/quindo/portal-auth/internal/usecase"
)

var application *app.Application

// rootCmd is the base command. Every subcommand talks to Postgres and Redis
// directly through the application services; there is no API in between.
var rootCmd = &cobra.Command{
	Use:           "portalctl",
	Short:         "Portal authentication service control tool",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		application, err = app.New(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("init application: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if application != nil {
			application.Close()
		}
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a new user",
	Long:  "Create a user and its credential, returning the generated handle, initial password, and activation code.",
	RunE: func(cmd *cobra.Command, args []string) error {
		input := usecase.RegistrationInput{}
		input.NationalID, _ = cmd.Flags().GetString("national-id")
		input.FirstNames, _ = cmd.Flags().GetString("first-names")
		input.LastNames, _ = cmd.Flags().GetString("last-names")
		input.Email, _ = cmd.Flags().GetString("email")
		input.Phone, _ = cmd.Flags().GetString("phone")

		result, err := application.Auth.Register(cmd.Context(), input, originFlag(cmd))
		if err != nil {
			if errors.Is(err, usecase.ErrDuplicateRegistration) {
				return fmt.Errorf("a user with one of these identifiers already exists")
			}
			return err
		}

		fmt.Printf("user id:         %s\n", result.UserID)
		fmt.Printf("handle:          %s\n", result.Handle)
		fmt.Printf("password:        %s\n", result.Password)
		fmt.Printf("activation code: %s\n", result.ActivationCode)
		return nil
	},
}

var activateCmd = &cobra.Command{
	Use:   "activate <handle> <code>",
	Short: "Activate an account with its activation code",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		err := application.Auth.Activate(cmd.Context(), args[0], args[1])
		switch {
		case errors.Is(err, usecase.ErrAlreadyActivated):
			return fmt.Errorf("account is already activated")
		case errors.Is(err, usecase.ErrInvalidToken):
			return fmt.Errorf("activation code is invalid or expired")
		case err != nil:
			return err
		}
		fmt.Println("account activated")
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <handle> <password>",
	Short: "Submit the password step of a login",
	Long:  "Verify the password and, on success, print the challenge id and second-factor code for the verify step.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		challenge, code, err := application.Auth.SubmitPassword(cmd.Context(), args[0], args[1], originFlag(cmd))
		switch {
		case errors.Is(err, usecase.ErrInvalidCredentials):
			return fmt.Errorf("invalid handle or password")
		case errors.Is(err, usecase.ErrAccountLocked):
			return fmt.Errorf("account is locked; reset the password to unlock it")
		case errors.Is(err, usecase.ErrAccountInactive):
			return fmt.Errorf("account is disabled")
		case errors.Is(err, usecase.ErrAccountNotActivated):
			return fmt.Errorf("account is not activated yet")
		case err != nil:
			return err
		}

		fmt.Printf("challenge id:       %s\n", challenge.ID)
		fmt.Printf("second-factor code: %s\n", code)
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <challenge-id> <code>",
	Short: "Submit the second-factor step of a login",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, err := application.Auth.SubmitSecondFactor(cmd.Context(), args[0], args[1], originFlag(cmd))
		switch {
		case errors.Is(err, usecase.ErrChallengeExpired):
			return fmt.Errorf("challenge expired; start again with login")
		case errors.Is(err, usecase.ErrInvalidToken):
			return fmt.Errorf("second-factor code is invalid or expired")
		case err != nil:
			return err
		}
		fmt.Printf("session id: %s\n", sessionID)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout <session-id>",
	Short: "Expire a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := application.Sessions.Expire(cmd.Context(), args[0], originFlag(cmd)); err != nil {
			return err
		}
		fmt.Println("logged out")
		return nil
	},
}

var resetRequestCmd = &cobra.Command{
	Use:   "reset-request <email>",
	Short: "Request a password reset code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := application.Auth.RequestPasswordReset(cmd.Context(), args[0])
		if errors.Is(err, usecase.ErrInvalidResetRequest) {
			// Same message as the success path so email addresses cannot be
			// probed through the tool.
			fmt.Println("if the address is registered, a reset code has been issued")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Println("if the address is registered, a reset code has been issued")
		fmt.Printf("reset code: %s\n", code)
		return nil
	},
}

var resetConfirmCmd = &cobra.Command{
	Use:   "reset-confirm <email> <code> <new-password>",
	Short: "Complete a password reset",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		err := application.Auth.ResetPassword(cmd.Context(), args[0], args[1], args[2])
		switch {
		case errors.Is(err, usecase.ErrInvalidResetRequest), errors.Is(err, usecase.ErrInvalidToken):
			return fmt.Errorf("reset code is invalid or expired")
		case err != nil:
			return err
		}
		fmt.Println("password updated")
		return nil
	},
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Operator commands",
}

var adminUsersCmd = &cobra.Command{
	Use:   "users",
	Short: "List users with credential state",
	RunE: func(cmd *cobra.Command, args []string) error {
		users, err := application.Admin.ListUsers(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "HANDLE\tNAME\tEMAIL\tROLE\tVALIDATED\tACTIVE\tLOCKED\tATTEMPTS")
		for _, u := range users {
			fmt.Fprintf(w, "%s\t%s %s\t%s\t%s\t%t\t%t\t%t\t%d\n",
				u.Credential.Handle,
				u.User.FirstNames, u.User.LastNames,
				u.User.Email,
				u.Credential.Role,
				u.Credential.Validated,
				u.Credential.Active,
				u.Credential.Locked,
				u.Credential.RemainingAttempts,
			)
		}
		return w.Flush()
	},
}

var adminHistoryCmd = &cobra.Command{
	Use:   "history [limit]",
	Short: "Show the audit trail, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit := 0
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("limit must be a number: %w", err)
			}
			limit = n
		}

		entries, err := application.Admin.ListHistory(cmd.Context(), limit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "AT\tACTION\tCODE\tHANDLE\tSESSION\tIP")
		for _, e := range entries {
			session := ""
			if e.Event.SessionID != nil {
				session = *e.Event.SessionID
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
				e.Event.At.Format("2006-01-02 15:04:05"),
				e.Event.Action,
				e.Event.Code,
				e.Handle,
				session,
				e.Event.IP,
			)
		}
		return w.Flush()
	},
}

var adminToggleCmd = &cobra.Command{
	Use:   "toggle <user-id>",
	Short: "Flip an account's active flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		active, err := application.Admin.ToggleActive(cmd.Context(), args[0])
		if err != nil {
			if errors.Is(err, usecase.ErrUserNotFound) {
				return fmt.Errorf("no user with id %s", args[0])
			}
			return err
		}
		fmt.Printf("account %s is now active=%t\n", args[0], active)
		return nil
	},
}

var serveMetricsCmd = &cobra.Command{
	Use:   "serve-metrics",
	Short: "Serve the Prometheus scrape endpoint until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return application.ServeMetrics(cmd.Context())
	},
}

func originFlag(cmd *cobra.Command) string {
	origin, _ := cmd.Flags().GetString("origin")
	return origin
}

func init() {
	registerCmd.Flags().String("national-id", "", "national identity number")
	registerCmd.Flags().String("first-names", "", "given names")
	registerCmd.Flags().String("last-names", "", "surnames")
	registerCmd.Flags().String("email", "", "email address")
	registerCmd.Flags().String("phone", "", "phone number")

	rootCmd.PersistentFlags().String("origin", "cli", "origin recorded on audit events")

	adminCmd.AddCommand(adminUsersCmd, adminHistoryCmd, adminToggleCmd)
	rootCmd.AddCommand(
		registerCmd,
		activateCmd,
		loginCmd,
		verifyCmd,
		logoutCmd,
		resetRequestCmd,
		resetConfirmCmd,
		adminCmd,
		serveMetricsCmd,
	)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
