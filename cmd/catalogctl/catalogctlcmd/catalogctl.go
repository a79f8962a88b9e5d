package catalogctlcmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jessevdk/go-flags"
	"github.com/olekukonko/tablewriter"
	"go.registries.dev/core/catalog"
	mbp "go.registries.dev/core/mainboilerplate"
	"go.registries.dev/core/storage"
	"go.registries.dev/core/storage/cache"
	"go.registries.dev/core/storage/cachedstore"
	"go.registries.dev/core/storage/sqlstore"
	"gopkg.in/yaml.v2"
)

const iniFilename = "catalogctl.ini"

var (
	// BaseCfg is configuration shared by all catalogctl sub-commands.
	BaseCfg = new(struct {
		Storage mbp.StorageConfig `group:"Storage" namespace:"storage" env-namespace:"STORAGE"`
		Cache   mbp.CacheConfig   `group:"Cache" namespace:"cache" env-namespace:"CACHE"`
		Log     mbp.LogConfig     `group:"Logging" namespace:"log" env-namespace:"LOG"`
	})
	// EventsCfg is configuration of the "events" sub-command tree.
	EventsCfg = new(struct{})

	// CommandRegistry holds sub-commands, keyed on the dotted path of
	// their parent command.
	CommandRegistry = mbp.NewCommandRegistry()
)

// ListConfig is common configuration of list operations.
type ListConfig struct {
	Format string `long:"format" short:"o" choice:"table" choice:"yaml" choice:"json" default:"table" description:"Output format"`
}

// NamespaceArg is the positional namespace argument of a command.
type NamespaceArg struct {
	Namespace string `positional-arg-name:"namespace" description:"Namespace (table) of Storables"`
}

// Execute builds the catalogctl parser, and parses and runs the command line.
func Execute() {
	var parser = flags.NewParser(BaseCfg, flags.Default)

	mbp.AddPrintConfigCmd(parser, iniFilename)
	parser.LongDescription = `catalogctl is a tool for inspecting a schema catalog database.

	See --help pages of each sub-command for documentation and usage examples.
	Optionally configure catalogctl with a '` + iniFilename + `' file in the current working directory,
	or with '~/.config/registries/` + iniFilename + `'. Use the 'print-config' sub-command to inspect
	the tool's current configuration.
	`

	// Commands which exist only to contain nested sub-commands must be
	// added before the registry is walked.
	_ = mustAddCmd(parser.Command, "events", "Interact with outbox events", "", EventsCfg)

	mbp.Must(CommandRegistry.AddCommands("", parser.Command, true), "could not add subcommand")
	mbp.MustParseConfig(parser, iniFilename)
}

type environment struct {
	registry *storage.Registry
	manager  *cachedstore.Manager
	close    func()
}

func startup(ctx context.Context) environment {
	mbp.InitLog(BaseCfg.Log)

	var policy = BaseCfg.Cache.ExpiryPolicy()
	mbp.Must(policy.Validate(), "invalid cache configuration")

	var db, dialect = BaseCfg.Storage.MustOpen(ctx)
	var registry = catalog.NewRegistry()
	var dbManager = sqlstore.NewManager(sqlstore.NewExecutor(db, dialect, registry))
	dbManager.LockPollInterval = BaseCfg.Storage.LockPollInterval

	var lru, err = cache.NewLRU(policy)
	mbp.Must(err, "building cache")

	var manager = cachedstore.NewManager(lru, dbManager)
	return environment{
		registry: registry,
		manager:  manager,
		close: func() {
			mbp.Must(manager.Cleanup(ctx), "cleaning up storage")
			_ = db.Close()
		},
	}
}

func mustAddCmd(cmd *flags.Command, name, short, long string, cfg interface{}) *flags.Command {
	cmd, err := cmd.AddCommand(name, short, long, cfg)
	mbp.Must(err, "failed to add command")
	return cmd
}

// parseParams parses "name=value" arguments into QueryParams.
func parseParams(args []string) ([]storage.QueryParam, error) {
	var out []storage.QueryParam
	for _, arg := range args {
		var ind = strings.IndexByte(arg, '=')
		if ind <= 0 {
			return nil, storage.NewInvalidArgumentError("param", "expected name=value, not %q", arg)
		}
		out = append(out, storage.QueryParam{Name: arg[:ind], Value: arg[ind+1:]})
	}
	return out, nil
}

// parseOrder parses "field", "field:asc" or "field:desc" arguments.
func parseOrder(args []string) ([]storage.OrderByField, error) {
	var out []storage.OrderByField
	for _, arg := range args {
		var name, dir = arg, "asc"
		if ind := strings.LastIndexByte(arg, ':'); ind != -1 {
			name, dir = arg[:ind], strings.ToLower(arg[ind+1:])
		}
		if name == "" {
			return nil, storage.NewInvalidArgumentError("order", "expected a field name in %q", arg)
		}
		switch dir {
		case "asc":
			out = append(out, storage.Asc(name))
		case "desc":
			out = append(out, storage.Desc(name))
		default:
			return nil, storage.NewInvalidArgumentError("order", "expected asc or desc, not %q", dir)
		}
	}
	return out, nil
}

// parseKey builds a StorableKey of the namespace from "field=value"
// arguments, typing each value by the namespace's Schema.
func parseKey(registry *storage.Registry, namespace string, args []string) (storage.StorableKey, error) {
	var proto, err = registry.New(namespace)
	if err != nil {
		return storage.StorableKey{}, err
	}
	var schema = proto.Schema()
	var fields = make(map[storage.Field]interface{}, len(args))

	for _, arg := range args {
		var ind = strings.IndexByte(arg, '=')
		if ind <= 0 {
			return storage.StorableKey{}, storage.NewInvalidArgumentError("key", "expected field=value, not %q", arg)
		}
		var field, ok = schema.Field(arg[:ind])
		if !ok {
			return storage.StorableKey{}, storage.NewInvalidArgumentError("key",
				"%s has no field %q (fields are %s)", namespace, arg[:ind], strings.Join(schema.Names(), ", "))
		}
		value, err := field.Type.Parse(arg[ind+1:])
		if err != nil {
			return storage.StorableKey{}, err
		}
		fields[field] = value
	}

	var key = storage.NewStorableKey(namespace, storage.NewPrimaryKey(fields))
	return key, key.Validate()
}

// writeStorables writes Storables to |w| in the format. Table columns are
// the Schema fields of the first Storable.
func writeStorables(w io.Writer, format string, out []storage.Storable) error {
	switch format {
	case "table":
		if len(out) == 0 {
			return nil
		}
		var table = tablewriter.NewWriter(w)
		var names = out[0].Schema().Names()
		table.Header(toAny(names)...)

		for _, s := range out {
			var row = s.ToMap()
			var cells = make([]string, len(names))
			for i, n := range names {
				cells[i] = formatValue(row[n])
			}
			if err := table.Append(cells); err != nil {
				return err
			}
		}
		return table.Render()

	case "yaml":
		var rows = make([]yaml.MapSlice, 0, len(out))
		for _, s := range out {
			var row = s.ToMap()
			var item yaml.MapSlice
			for _, n := range s.Schema().Names() {
				item = append(item, yaml.MapItem{Key: n, Value: row[n]})
			}
			rows = append(rows, item)
		}
		var b, err = yaml.Marshal(rows)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err

	case "json":
		var enc = json.NewEncoder(w)
		for _, s := range out {
			if err := enc.Encode(s.ToMap()); err != nil {
				return err
			}
		}
		return nil

	default:
		return storage.NewInvalidArgumentError("format", "unknown format %q", format)
	}
}

func formatValue(v interface{}) string {
	switch vv := v.(type) {
	case nil:
		return "<none>"
	case []byte:
		return fmt.Sprintf("%x", vv)
	default:
		return fmt.Sprint(vv)
	}
}

func toAny(s []string) []interface{} {
	var out = make([]interface{}, len(s))
	for i := range s {
		out[i] = s[i]
	}
	return out
}
