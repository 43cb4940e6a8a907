package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"schoolpulse_go/database"
	"schoolpulse_go/database/seeders"
	"schoolpulse_go/services"
	"schoolpulse_go/services/email"
	"schoolpulse_go/storage"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := database.AutoMigrate(db); err != nil {
			return errors.Wrap(err, "migrating")
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Migration completed")
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the badge catalog, optionally with a demo school",
	RunE: func(cmd *cobra.Command, args []string) error {
		demo, _ := cmd.Flags().GetBool("demo")
		if err := seeders.SeedAll(db, demo); err != nil {
			return errors.Wrap(err, "seeding")
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Seeding completed")
		return nil
	},
}

var createPrincipalCmd = &cobra.Command{
	Use:   "create-principal",
	Short: "Create a verified principal account and its school",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		in := services.RegisterInput{}
		in.Email, _ = flags.GetString("email")
		in.Password, _ = flags.GetString("password")
		in.Name, _ = flags.GetString("name")
		in.SchoolName, _ = flags.GetString("school")
		in.Phone, _ = flags.GetString("phone")
		in.ConfirmPassword = in.Password

		auth := services.NewAuthService(db, nil, email.NewConsoleSender(cfg, false), cfg)
		user, err := auth.Register(cmd.Context(), in)
		if err != nil {
			return err
		}
		if err := db.WithContext(cmd.Context()).Model(user).Update("email_verified", true).Error; err != nil {
			return errors.Wrap(err, "marking email verified")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created principal %s (school %s)\n", user.Email, user.SchoolID)
		return nil
	},
}

var resetPasswordCmd = &cobra.Command{
	Use:   "reset-password <email> <new-password>",
	Short: "Set a user's password",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		auth := services.NewAuthService(db, nil, email.NewConsoleSender(cfg, false), cfg)
		if err := auth.SetPassword(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Password updated for %s\n", args[0])
		return nil
	},
}

var computeMetricsCmd = &cobra.Command{
	Use:   "compute-metrics [year] [month]",
	Short: "Compute monthly teacher metrics, the previous month by default",
	Args:  cobra.RangeArgs(0, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		year, month := services.PreviousMonth(time.Now())
		if len(args) > 0 {
			if len(args) != 2 {
				return errors.New("give both year and month")
			}
			y, err := strconv.Atoi(args[0])
			if err != nil {
				return errors.Wrapf(err, "year %q", args[0])
			}
			m, err := strconv.Atoi(args[1])
			if err != nil {
				return errors.Wrapf(err, "month %q", args[1])
			}
			year, month = y, time.Month(m)
		}
		school, _ := cmd.Flags().GetString("school")

		written, err := services.NewMetricsService(db).ComputeMonth(cmd.Context(), school, year, month)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Computed %d-%02d metrics for %d teachers\n", year, int(month), written)
		return nil
	},
}

var archiveLogsCmd = &cobra.Command{
	Use:   "archive-logs",
	Short: "Move old activity logs to archive storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		list, _ := cmd.Flags().GetBool("list")

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		activity := services.NewActivityService(db, database.GetRedisClient(), storage.New(ctx, cfg))
		if list {
			archives, err := activity.Archives(ctx)
			if err != nil {
				return err
			}
			for _, a := range archives {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d records\n", a.ID, a.FileName, a.RecordCount)
			}
			return nil
		}

		archive, err := activity.Archive(ctx, days)
		if err != nil {
			return err
		}
		if archive == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing to archive")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Archived %d records to %s\n", archive.RecordCount, archive.FileName)
		return nil
	},
}

func init() {
	seedCmd.Flags().Bool("demo", false, "also create a demo school")

	f := createPrincipalCmd.Flags()
	f.String("email", "", "principal email")
	f.String("password", "", "initial password")
	f.String("name", "", "principal name")
	f.String("school", "", "school name")
	f.String("phone", "", "contact phone")
	for _, name := range []string{"email", "password", "name", "school"} {
		_ = createPrincipalCmd.MarkFlagRequired(name)
	}

	computeMetricsCmd.Flags().String("school", "", "limit to one school id")

	archiveLogsCmd.Flags().Int("days", services.ArchiveAfterDays, "archive logs older than this many days")
	archiveLogsCmd.Flags().Bool("list", false, "list existing archives instead")
}
