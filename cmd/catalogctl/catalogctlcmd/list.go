package catalogctlcmd

import (
	"context"
	"os"

	mbp "go.registries.dev/core/mainboilerplate"
)

type cmdList struct {
	ListConfig
	Params []string     `long:"param" short:"p" description:"Query parameter of the form name=value. May be repeated"`
	Order  []string     `long:"order" description:"Field to order by, of the form field[:asc|:desc]. May be repeated"`
	Args   NamespaceArg `positional-args:"yes" required:"yes"`
}

func init() {
	CommandRegistry.AddCommand("", "list", "List Storables of a namespace", `
List Storables of a catalog namespace, optionally filtered by query parameters.

Parameters naming a field of the namespace are typed by that field and
applied as equality filters. Parameters naming no field are ignored, and if
no parameter names a field, the entire namespace is listed.

List schema metadata of a group, most recently created first:
>    catalogctl list schema_metadata_info --param schemaGroup=kafka --order timestamp:desc

Results can be output in a variety of --format options:
yaml:  Prints a YAML sequence of rows.
json:  Prints rows encoded as JSON, one per line.
table: Prints as a table.
`, &cmdList{})
}

func (cmd *cmdList) Execute([]string) error {
	var ctx = context.Background()
	var env = startup(ctx)
	defer env.close()

	var params, err = parseParams(cmd.Params)
	mbp.Must(err, "failed to parse --param")
	order, err := parseOrder(cmd.Order)
	mbp.Must(err, "failed to parse --order")

	_, err = env.registry.New(cmd.Args.Namespace)
	mbp.Must(err, "unknown namespace")

	out, err := env.manager.Find(ctx, cmd.Args.Namespace, params, order...)
	mbp.Must(err, "failed to list", "namespace", cmd.Args.Namespace)

	return writeStorables(os.Stdout, cmd.Format, out)
}
