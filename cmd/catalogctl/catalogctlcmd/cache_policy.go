package catalogctlcmd

import (
	"io"
	"os"

	mbp "go.registries.dev/core/mainboilerplate"
	"go.registries.dev/core/storage/cache"
	"gopkg.in/yaml.v2"
)

type cmdCachePolicy struct{}

func init() {
	CommandRegistry.AddCommand("", "cache-policy", "Print the effective cache policy", `
Validate and print the cache ExpiryPolicy of the current configuration,
as YAML.
`, &cmdCachePolicy{})
}

func (cmd *cmdCachePolicy) Execute([]string) error {
	mbp.InitLog(BaseCfg.Log)
	return writePolicy(os.Stdout, BaseCfg.Cache.ExpiryPolicy())
}

func writePolicy(w io.Writer, policy cache.ExpiryPolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	var b, err = yaml.Marshal(struct {
		MaxSize           int    `yaml:"maxSize"`
		ExpireAfterAccess string `yaml:"expireAfterAccess"`
	}{policy.MaxSize, policy.ExpireAfterAccess.String()})

	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
