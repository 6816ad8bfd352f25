// Command cli is a read-only operator tool for inspecting accounts, ledgers
// and generated ids against the configured store.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/amirasaad/corebank/infra/initializer"
	"github.com/amirasaad/corebank/pkg/config"
	"github.com/amirasaad/corebank/pkg/domain/account"
	"github.com/amirasaad/corebank/pkg/service/statement"
)

const usage = `Usage: cli <command> [arguments]
Commands:
  balance <account_number>
  ledger <account_number> [start end]   (RFC 3339 bounds)
  decompose <snowflake_id>`

var errUsage = errors.New(usage)

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		return
	}
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Println("Failed to load configuration:", err)
		os.Exit(1)
	}
	deps, cleanup, err := initializer.InitializeDependencies(cfg)
	if err != nil {
		fmt.Println("Failed to initialize dependencies:", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := run(context.Background(), os.Args[1:], os.Stdout, deps); err != nil {
		fmt.Println(err)
		cleanup()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer, deps *config.Deps) error {
	if len(args) < 2 {
		return errUsage
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q: %w", args[1], err)
	}

	switch args[0] {
	case "balance":
		repo, err := deps.Uow.AccountRepository()
		if err != nil {
			return err
		}
		a, err := repo.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("error fetching account: %w", err)
		}
		fmt.Fprintf(out, "Account %d (%s) owner=%s balance: %s\n",
			a.Number, a.Type, a.OwnerID, a.Balance.StringFixed(account.Scale))
	case "ledger":
		var start, end *time.Time
		if len(args) == 4 {
			s, err := time.Parse(time.RFC3339, args[2])
			if err != nil {
				return fmt.Errorf("invalid start: %w", err)
			}
			e, err := time.Parse(time.RFC3339, args[3])
			if err != nil {
				return fmt.Errorf("invalid end: %w", err)
			}
			start, end = &s, &e
		} else if len(args) != 2 {
			return errUsage
		}
		entries, err := statement.New(deps.Uow, deps.Logger).ListLedger(ctx, []int64{id}, start, end)
		if err != nil {
			return fmt.Errorf("error listing ledger: %w", err)
		}
		for _, e := range entries {
			tx := e.Transaction
			fmt.Fprintf(out, "%s  %-6s %-20s %12s  balance=%s  tx=%d  %s\n",
				e.Timestamp.Format(time.RFC3339), tx.Type, tx.Mode,
				tx.Amount.StringFixed(account.Scale), e.BalanceAfter.StringFixed(account.Scale),
				tx.ID, tx.Description)
		}
		fmt.Fprintf(out, "%d entries\n", len(entries))
	case "decompose":
		p := deps.IDs.Snowflake().Decompose(id)
		fmt.Fprintf(out, "timestamp=%s datacenter=%d worker=%d sequence=%d\n",
			p.Timestamp.Format(time.RFC3339Nano), p.DatacenterID, p.WorkerID, p.Sequence)
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
	return nil
}
