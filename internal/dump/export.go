package dump

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/loykin/warden/internal/api"
	"github.com/loykin/warden/internal/process"
)

// export/import deal in a human-readable TOML rendering of the same fields
// the dumpfile carries: one [[processes]] block per record.

type exportDoc struct {
	Processes []exportEntry `mapstructure:"processes"`
}

type exportEntry struct {
	Name      string            `mapstructure:"name"`
	Script    string            `mapstructure:"script"`
	Path      string            `mapstructure:"path"`
	Env       map[string]string `mapstructure:"env"`
	Watch     string            `mapstructure:"watch"`
	MaxMemory string            `mapstructure:"max_memory"`
	Status    string            `mapstructure:"status"`
}

// Export writes the given records to path as TOML.
func Export(path string, recs []Record) error {
	var b strings.Builder
	for _, r := range recs {
		b.WriteString("[[processes]]\n")
		fmt.Fprintf(&b, "name = %q\n", r.Name)
		fmt.Fprintf(&b, "script = %q\n", r.Script)
		fmt.Fprintf(&b, "path = %q\n", r.Path)
		if r.Watch.Enabled {
			fmt.Fprintf(&b, "watch = %q\n", r.Watch.Path)
		}
		if r.MaxMemory > 0 {
			fmt.Fprintf(&b, "max_memory = %q\n", process.FormatMemorySuffix(r.MaxMemory))
		}
		fmt.Fprintf(&b, "status = %q\n", r.StatusAtDump)
		if len(r.Env) > 0 {
			b.WriteString("[processes.env]\n")
			keys := make([]string, 0, len(r.Env))
			for k := range r.Env {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, "%s = %q\n", k, r.Env[k])
			}
		}
		b.WriteString("\n")
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o640); err != nil {
		return &api.IOError{Op: "export", Err: err}
	}
	return nil
}

// Import parses a TOML process file written by Export (or by hand) back into
// dump records. IDs are left unset; the table assigns fresh ones on insert.
func Import(path string) ([]Record, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, &api.IOError{Op: "import", Err: err}
	}
	var doc exportDoc
	if err := v.Unmarshal(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", api.ErrInvalidArgs, err)
	}
	out := make([]Record, 0, len(doc.Processes))
	for _, e := range doc.Processes {
		if e.Script == "" {
			return nil, fmt.Errorf("%w: process %q has no script", api.ErrInvalidArgs, e.Name)
		}
		maxMem, err := process.ParseMemory(e.MaxMemory)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", api.ErrInvalidArgs, err)
		}
		status := e.Status
		if status == "" {
			status = process.StatusStopped
		}
		out = append(out, Record{
			ID:           -1,
			Name:         e.Name,
			Script:       e.Script,
			Path:         e.Path,
			Env:          e.Env,
			Watch:        process.Watch{Enabled: e.Watch != "", Path: e.Watch},
			MaxMemory:    maxMem,
			StatusAtDump: status,
		})
	}
	return out, nil
}
