package catalogctlcmd

import (
	"context"
	"os"

	log "github.com/sirupsen/logrus"
	mbp "go.registries.dev/core/mainboilerplate"
	"go.registries.dev/core/storage"
)

type cmdGet struct {
	ListConfig
	Key  []string     `long:"key" short:"k" required:"true" description:"Primary key field of the form field=value. May be repeated"`
	Args NamespaceArg `positional-args:"yes" required:"yes"`
}

func init() {
	CommandRegistry.AddCommand("", "get", "Get a Storable by its primary key", `
Get the Storable of a namespace having the given primary key. Key values are
typed by the fields of the namespace.

>    catalogctl get schema_metadata_info --key name=orders
>    catalogctl get schema_version_info --key id=42 --format yaml
`, &cmdGet{})
}

func (cmd *cmdGet) Execute([]string) error {
	var ctx = context.Background()
	var env = startup(ctx)
	defer env.close()

	var key, err = parseKey(env.registry, cmd.Args.Namespace, cmd.Key)
	mbp.Must(err, "failed to parse --key")

	s, err := env.manager.Get(ctx, key)
	mbp.Must(err, "failed to get", "key", key)

	if s == nil {
		log.WithField("key", key).Warn("not found")
		return storage.NewNotFoundError(cmd.Args.Namespace, key.PrimaryKey)
	}
	return writeStorables(os.Stdout, cmd.Format, []storage.Storable{s})
}
