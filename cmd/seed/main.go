package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"storefront/internal/auth"
	"storefront/internal/config"
	"storefront/internal/repository"
	"storefront/internal/seed"
	"storefront/internal/service"
)

func main() {
	app := &cli.App{
		Name:  "seed",
		Usage: "load a JSON or YAML product list into the catalog",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Value: "products.json", Usage: "product list to load"},
			&cli.BoolFlag{Name: "wipe", Usage: "delete every existing product first"},
			&cli.StringFlag{Name: "admin-email", EnvVars: []string{"SEED_ADMIN_EMAIL"}, Usage: "create or promote this admin account"},
			&cli.StringFlag{Name: "admin-password", EnvVars: []string{"SEED_ADMIN_PASSWORD"}},
			&cli.StringFlag{Name: "admin-username", Value: "admin"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		slog.Error("seed failed", "err", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Context, 5*time.Minute)
	defer cancel()

	recs, err := seed.LoadFile(c.String("file"))
	if err != nil {
		return err
	}
	stores, err := repository.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return err
	}
	defer stores.Close(context.Background())

	accounts := service.NewAuthService(stores.Users, auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL), auth.NewPasswordHasher())
	s := seed.NewSeeder(stores.Products, service.NewProductService(stores.Products), accounts)

	opts := seed.Options{Wipe: c.Bool("wipe")}
	if email := c.String("admin-email"); email != "" {
		if c.String("admin-password") == "" {
			return fmt.Errorf("--admin-password is required with --admin-email")
		}
		opts.Admin = &service.RegisterInput{
			Username: c.String("admin-username"),
			Email:    email,
			Password: c.String("admin-password"),
		}
	}
	sum, err := s.Run(ctx, recs, opts)
	if err != nil {
		return err
	}
	slog.Info("seeded products", "created", sum.Created, "skipped", sum.Skipped, "deleted", sum.Deleted)
	return nil
}
