// Package main command implementations. Each subcommand owns its FlagSet and
// wires the application only after flags parse cleanly.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ceroware/ceropos/internal/archive"
	"github.com/ceroware/ceropos/internal/domain"
	"github.com/ceroware/ceropos/internal/events"
	"github.com/ceroware/ceropos/internal/scheduler"
	"github.com/ceroware/ceropos/internal/store/sqlite"
)

// backupCmd creates an archive and writes it to the output directory.
func backupCmd(args []string) int {
	fs := flag.NewFlagSet("backup", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	out := fs.String("out", ".", "Directory the archive is written into")
	protect := fs.Bool("protect", false, "Encrypt the archive with a password (prompted)")
	password := fs.String("password", "", "Password for -protect (prompt is skipped when set)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	pw := *password
	if *protect && pw == "" {
		var err error
		pw, err = promptNewPassword(os.Stderr)
		if err != nil {
			return fail(err)
		}
	}

	a, err := newApp()
	if err != nil {
		return fail(err)
	}
	defer a.close()

	bk, err := a.svc.CreateBackup(context.Background(), pw)
	if err != nil {
		return fail(err)
	}
	dest := filepath.Join(*out, bk.Filename)
	if err := os.WriteFile(dest, bk.Bytes, 0o600); err != nil {
		return fail(fmt.Errorf("write archive: %w", err))
	}
	fmt.Printf("Backup written to %s (%d bytes)\n", dest, len(bk.Bytes))
	return 0
}

// restoreCmd replaces the live dataset with an archive's contents.
func restoreCmd(args []string) int {
	fs := flag.NewFlagSet("restore", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	password := fs.String("password", "", "Password for an encrypted archive (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: ceropos restore [options] <file.cerobak>")
		return 2
	}

	raw, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fail(fmt.Errorf("read archive: %w", err))
	}

	a, err := newApp()
	if err != nil {
		return fail(err)
	}
	defer a.close()

	pw := *password
	out, err := a.svc.RestoreBackup(context.Background(), raw, pw)
	if errors.Is(err, archive.ErrPasswordRequired) && pw == "" {
		pw, err = promptPassword(os.Stderr)
		if err != nil {
			return fail(err)
		}
		out, err = a.svc.RestoreBackup(context.Background(), raw, pw)
	}
	if err != nil {
		return fail(err)
	}

	fmt.Printf("Restored %d products, %d categories, %d sales, %d suppliers, %d clients\n",
		out.Counts.Products, out.Counts.Categories, out.Counts.Sales, out.Counts.Suppliers, out.Counts.Clients)
	if out.ImagesSkipped > 0 {
		fmt.Printf("Warning: %d of %d images could not be restored\n",
			out.ImagesSkipped, out.ImagesSkipped+out.ImagesRestored)
	}
	return 0
}

// inspectCmd previews an archive without touching the live dataset.
func inspectCmd(args []string) int {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	password := fs.String("password", "", "Password for an encrypted archive")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: ceropos inspect [options] <file.cerobak>")
		return 2
	}

	raw, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fail(fmt.Errorf("read archive: %w", err))
	}

	codec := &archive.Codec{AppVersion: appVersion}
	sum, err := codec.Inspect(raw, *password)
	if err != nil {
		return fail(err)
	}

	fmt.Printf("Application:  %s %s\n", sum.Metadata.App, sum.Metadata.AppVersion)
	fmt.Printf("Created:      %s\n", sum.Metadata.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Encrypted:    %v\n", sum.Metadata.Encrypted)
	fmt.Printf("Size:         %d bytes\n", sum.SizeBytes)
	fmt.Printf("Images:       %d\n", sum.ImageCount)
	if sum.Protected && *password == "" {
		fmt.Println("Records:      protected (supply -password to see counts)")
		return 0
	}
	fmt.Printf("Records:      %d products, %d categories, %d sales, %d suppliers, %d clients\n",
		sum.Counts.Products, sum.Counts.Categories, sum.Counts.Sales, sum.Counts.Suppliers, sum.Counts.Clients)
	return 0
}

// checkCmd validates archive structure without decrypting anything.
func checkCmd(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: ceropos check <file.cerobak>")
		return 2
	}

	raw, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fail(fmt.Errorf("read archive: %w", err))
	}

	codec := &archive.Codec{AppVersion: appVersion}
	res := codec.Validate(raw)
	if !res.Valid {
		return fail(res.Err)
	}
	fmt.Printf("Valid %s archive (encrypted: %v)\n", res.Metadata.App, res.Metadata.Encrypted)
	return 0
}

// autoCmd runs the auto-backup daemon until interrupted.
func autoCmd(args []string) int {
	fs := flag.NewFlagSet("auto", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	a, err := newApp()
	if err != nil {
		return fail(err)
	}
	defer a.close()

	unsubscribe := a.bus.Subscribe(func(e events.Event) {
		switch e.Type {
		case events.BackupCompleted:
			a.log.Info("automatic backup complete", "filename", e.Filename)
		case events.BackupFailed:
			a.log.Error("automatic backup failed", "error", e.Err)
		}
	})
	defer unsubscribe()

	runner := scheduler.New(a.svc, a.settings, realClock{}, scheduler.Config{
		Interval: a.cfg.CheckInterval,
		Dir:      a.cfg.BackupPath(),
		Logger:   a.log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// First check immediately; the ticker covers the rest.
	if _, err := runner.RunIfDue(ctx, time.Now().UTC()); err != nil {
		a.log.Error("auto backup", "error", err)
	}
	runner.Start(ctx)
	a.log.Info("auto-backup daemon started", "interval", a.cfg.CheckInterval, "pid", os.Getpid())
	<-ctx.Done()
	runner.Stop()
	a.log.Info("auto-backup daemon stopped")
	return 0
}

// seedCmd fills an empty database with a handful of demonstration records.
func seedCmd(args []string) int {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	a, err := newApp()
	if err != nil {
		return fail(err)
	}
	defer a.close()

	ctx := context.Background()
	store := a.svc.Data.(*sqlite.Store)
	now := time.Now().UTC()

	cat, err := store.AddCategory(ctx, domain.Category{Name: "Bebidas"})
	if err != nil {
		return fail(err)
	}
	if _, err := store.AddProduct(ctx, domain.Product{
		Name: "Cafe 500g", CategoryID: cat.ID, Price: 18.9, Cost: 11.5, Stock: 24,
		CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		return fail(err)
	}
	if _, err := store.AddProduct(ctx, domain.Product{
		Name: "Cha Mate", CategoryID: cat.ID, Price: 9.5, Cost: 5.2, Stock: 40,
		CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		return fail(err)
	}
	if _, err := store.AddSupplier(ctx, domain.Supplier{Name: "Graos do Sul"}); err != nil {
		return fail(err)
	}
	if _, err := store.AddClient(ctx, domain.Client{Name: "Cliente Balcao"}); err != nil {
		return fail(err)
	}

	fmt.Println("Seeded demonstration records")
	return 0
}
