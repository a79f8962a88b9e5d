package catalogctlcmd

import (
	"context"
	"os"

	"go.registries.dev/core/catalog"
	mbp "go.registries.dev/core/mainboilerplate"
	"go.registries.dev/core/storage"
)

type cmdEventsList struct {
	ListConfig
	State string `long:"state" choice:"pending" choice:"failed" choice:"processed" choice:"all" default:"pending" description:"State of listed events"`
}

func init() {
	CommandRegistry.AddCommand("events", "list", "List outbox events", `
List outbox events of the catalog, in ascending ID order.

Events are pending until the outbox processor dispatches them, after which
they're either processed or failed. Neither state is ever reverted.

>    catalogctl events list --state failed
`, &cmdEventsList{})
}

func (cmd *cmdEventsList) Execute([]string) error {
	var ctx = context.Background()
	var env = startup(ctx)
	defer env.close()

	var out, err = env.manager.Search(ctx, eventsQuery(cmd.State))
	mbp.Must(err, "failed to list events")

	return writeStorables(os.Stdout, cmd.Format, out)
}

// eventsQuery returns a non-locking SearchQuery of Events in the state.
func eventsQuery(state string) storage.SearchQuery {
	var q = storage.SearchFrom(catalog.EventNamespace).OrderBy(storage.Asc(catalog.ColID))

	switch state {
	case "pending":
		q = q.Where(storage.Eq(catalog.ColProcessed, false), storage.Eq(catalog.ColFailed, false))
	case "failed":
		q = q.Where(storage.Eq(catalog.ColFailed, true))
	case "processed":
		q = q.Where(storage.Eq(catalog.ColProcessed, true))
	}
	return q
}
