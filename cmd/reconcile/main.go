// Command reconcile lists ledger entries stuck in pending_reconciliation and
// resolves them after an operator has repaired the chain/ledger mismatch.
//
//	reconcile list
//	reconcile resolve --id <uuid> --status completed|failed --note "..."
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"memeetf/internal/domain"
	"memeetf/internal/logging"
	"memeetf/internal/reconcile"
	pgstore "memeetf/internal/storage/postgres"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	fs := flag.NewFlagSet(os.Args[1], flag.ExitOnError)
	postgresDSN := fs.String("postgres-dsn", os.Getenv("MEMEETF_STORAGE_POSTGRES_DSN"), "PostgreSQL connection string")
	id := fs.String("id", "", "Entry id to resolve")
	status := fs.String("status", "", "Resolution status: completed or failed")
	note := fs.String("note", "", "Resolution note (required)")
	_ = fs.Parse(os.Args[2:])

	if *postgresDSN == "" {
		fmt.Fprintln(os.Stderr, "Error: --postgres-dsn is required")
		os.Exit(1)
	}

	log, err := logging.New("warn", "memeetf-reconcile", "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to postgres: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	svc := reconcile.NewService(pgstore.NewTransactionStore(pool), nil, log)

	switch os.Args[1] {
	case "list":
		err = list(ctx, svc, os.Stdout)
	case "resolve":
		err = resolve(ctx, svc, *id, *status, *note)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: reconcile list [--postgres-dsn DSN]")
	fmt.Fprintln(os.Stderr, "       reconcile resolve --id UUID --status completed|failed --note TEXT [--postgres-dsn DSN]")
}

func list(ctx context.Context, svc *reconcile.Service, out io.Writer) error {
	rows, err := svc.Pending(ctx)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "no pending_reconciliation entries")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tWALLET\tAMOUNT\tSIGNATURE\tREFERENCE\tCREATED")
	for _, t := range rows {
		ref := ""
		if t.ReferenceID != uuid.Nil {
			ref = t.ReferenceID.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Kind, t.UserWallet, t.Amount, t.TxSignature, ref, t.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func resolve(ctx context.Context, svc *reconcile.Service, id, status, note string) error {
	entryID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid --id: %w", err)
	}
	if err := svc.Resolve(ctx, entryID, domain.TxStatus(status), note); err != nil {
		return err
	}
	fmt.Printf("resolved %s as %s\n", entryID, status)
	return nil
}
