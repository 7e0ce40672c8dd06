package schema

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"

	"gopkg.in/yaml.v2"
)

// TableOptions are the options of one table. The inline options
// apply to every family of the table. Families overrides them per
// family.
type TableOptions struct {
	Options  `yaml:",inline"`
	Families map[string]Options `yaml:"families,omitempty"`
}

// Config holds the storage options of every table.
//
//   defaults:
//     compression: lzo-or-gz
//     maxVersions: 1
//   tables:
//     users:
//       inMemory: true
//       forceInMemory: true
//       families:
//         props:
//           timeToLiveSeconds: 86400
type Config struct {
	Defaults Options                 `yaml:"defaults,omitempty"`
	Tables   map[string]TableOptions `yaml:"tables,omitempty"`
}

// Desired resolves the desired properties of a family of a table
func (config Config) Desired(table, family string) Desired {
	tableOptions := config.Tables[table]

	return Resolve(tableOptions.Families[family], tableOptions.Options, config.Defaults)
}

// LoadConfig reads a YAML config
func LoadConfig(r io.Reader) (Config, error) {
	var config Config

	raw, err := ioutil.ReadAll(r)

	if err != nil {
		return Config{}, fmt.Errorf("Could not read schema config: %s", err.Error())
	}

	if err := yaml.UnmarshalStrict(raw, &config); err != nil {
		return Config{}, fmt.Errorf("Could not parse schema config: %s", err.Error())
	}

	return config, nil
}

// LoadConfigFile reads a YAML config from a file
func LoadConfigFile(path string) (Config, error) {
	f, err := os.Open(path)

	if err != nil {
		return Config{}, fmt.Errorf("Could not open schema config %s: %s", path, err.Error())
	}

	defer f.Close()

	return LoadConfig(f)
}
