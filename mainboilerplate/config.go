package mainboilerplate

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
)

// ConfigRootEnv names an environment variable of an additional directory
// searched for INI configuration.
const ConfigRootEnv = "REGISTRIES_CONFIG_ROOT"

// configSearchPaths returns candidate paths of the INI file |name|, in order:
// the working directory, ~/.config/registries, and $REGISTRIES_CONFIG_ROOT.
func configSearchPaths(name string) []string {
	var out = []string{name}
	for _, home := range []string{os.Getenv("HOME"), os.Getenv("UserProfile")} {
		if home != "" {
			out = append(out, filepath.Join(home, ".config", "registries", name))
		}
	}
	if root := os.Getenv(ConfigRootEnv); root != "" {
		out = append(out, filepath.Join(root, name))
	}
	return out
}

// MustParseConfig parses the Parser from the first INI file of |configName|
// which exists, then from environment bindings and command-line flags, which
// take precedence. Options of the INI file which the Parser doesn't know are
// ignored.
func MustParseConfig(parser *flags.Parser, configName string) {
	var options = parser.Options
	parser.Options |= flags.IgnoreUnknown
	var ini = flags.NewIniParser(parser)

	for _, path := range configSearchPaths(configName) {
		var err = ini.ParseFile(path)
		if os.IsNotExist(err) {
			continue
		} else if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		break
	}

	parser.Options = options
	MustParseArgs(parser)
}

// MustParseArgs parses os.Args with the Parser, exiting on input errors
// and panicking on errors of the Parser's own definition.
func MustParseArgs(parser *flags.Parser) {
	var _, err = parser.ParseArgs(os.Args[1:])
	if err == nil {
		return
	}
	var flagErr, ok = err.(*flags.Error)
	if !ok {
		Must(err, "fatal error")
	}

	switch flagErr.Type {
	case flags.ErrDuplicatedFlag, flags.ErrTag, flags.ErrInvalidTag, flags.ErrShortNameTooLong, flags.ErrMarshal:
		panic(err)

	case flags.ErrCommandRequired:
		_, _ = os.Stderr.WriteString("\n")
		writeUsage(parser)

	case flags.ErrHelp:
		// go-flags has already printed help if PrintErrors is set.
		if parser.Options&flags.PrintErrors == 0 {
			writeUsage(parser)
		}
	}
	os.Exit(1)
}

func writeUsage(parser *flags.Parser) {
	parser.WriteHelp(os.Stderr)
	fmt.Fprintf(os.Stderr, "\nVersion %s, built at %s.\n", Version, BuildDate)
}

// AddPrintConfigCmd adds a "print-config" command to the Parser, which
// writes the fully-resolved configuration as INI and exits.
func AddPrintConfigCmd(parser *flags.Parser, configName string) {
	var _, err = parser.AddCommand("print-config", "Print combined configuration and exit", `
Print the configuration combined from `+configName+`, environment variables,
and flags to stdout, in INI format. The output is itself a valid `+configName+`.
`, &printConfig{parser})
	Must(err, "failed to add print-config command")
}

type printConfig struct {
	*flags.Parser `no-flag:"t"`
}

func (p printConfig) Execute([]string) error {
	flags.NewIniParser(p.Parser).Write(os.Stdout,
		flags.IniIncludeComments|flags.IniCommentDefaults|flags.IniIncludeDefaults)
	return nil
}
