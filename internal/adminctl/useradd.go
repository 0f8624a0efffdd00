package adminctl

import (
	"bufio"
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/cryptox"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"
	"github.com/spf13/cobra"
)

const defaultUserAddTimeout = 30 * time.Second

// registrar is the part of the session service useradd needs.
type registrar interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.IdentitySummary, error)
}

type userAddOptions struct {
	userName    string
	displayName string
	email       string
	phone       string
	admin       bool
	timeout     time.Duration
}

// NewUserAddCmd creates the useradd subcommand.
func NewUserAddCmd() *cobra.Command {
	opts := &userAddOptions{}

	cmd := &cobra.Command{
		Use:   "useradd",
		Short: "Create an account",
		Long: `Creates an account with a password read from the terminal without echo.
Missing username or display name are prompted for.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			cfg := loadConfig()
			db, err := openDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)

			// Register never mints tokens, so no codec is needed.
			svc := services.NewSessionService(db, repomanager.NewPostgresRepositoryManager(),
				cryptox.NewArgon2idHasher(cryptox.DefaultParams), nil, cfg.RefreshTokenValidityDuration, logger, nil)

			return runUserAdd(ctx, cmd, svc, opts)
		},
	}

	cmd.Flags().StringVar(&opts.userName, "username", "", "login name")
	cmd.Flags().StringVar(&opts.displayName, "display-name", "", "display name")
	cmd.Flags().StringVar(&opts.email, "email", "", "email address")
	cmd.Flags().StringVar(&opts.phone, "phone", "", "phone number")
	cmd.Flags().BoolVar(&opts.admin, "admin", false, "grant the Admin role")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", defaultUserAddTimeout, "timeout for database operations")

	return cmd
}

func runUserAdd(ctx context.Context, cmd *cobra.Command, reg registrar, opts *userAddOptions) error {
	reader := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	var err error
	if opts.userName == "" {
		if opts.userName, err = GetSimpleText(reader, "Username", out); err != nil {
			return err
		}
	}
	if opts.displayName == "" {
		if opts.displayName, err = GetSimpleText(reader, "Display name", out); err != nil {
			return err
		}
	}

	password, err := GetNewPassword(out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	in := services.RegisterInput{
		UserName:    opts.userName,
		Password:    string(password),
		DisplayName: opts.displayName,
	}
	if opts.email != "" {
		in.Email = &opts.email
	}
	if opts.phone != "" {
		in.Phone = &opts.phone
	}
	if opts.admin {
		in.RoleID = models.RoleAdmin.ID()
	}

	summary, err := reg.Register(ctx, in)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "created %s %q (id %d)\n", summary.Role, summary.UserName, summary.ID)
	return nil
}
