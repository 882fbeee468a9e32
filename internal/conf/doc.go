// Package conf implements drop-in configuration file support for clashctl.
//
// # Usage
//
// The global Configuration variable is automatically loaded at package initialization:
//
//	import "github.com/sskaje/clashctl/internal/conf"
//
//	func main() {
//	    fmt.Println(conf.Configuration.ClashRoot)
//	}
//
// For custom configuration loading (e.g., testing or --config), use ConfigSource:
//
//	cs := &conf.ConfigSource{
//	    Path:      "/custom/path/config.toml",
//	    DropInDir: "/custom/path/config.toml.d",
//	}
//	config, err := cs.Read()
//
// # Load Order
//
// Config is loaded and applied in four layers:
//
//  1. In-memory defaults (default.toml, embedded)
//  2. Legacy file: /config/clash/clash.ini, if it still exists
//  3. Main config file: /etc/clashctl/config.toml
//  4. Drop-in files: /etc/clashctl/config.toml.d/*.toml, in lexicographic order
//
// Every layer is optional except the embedded defaults; an existing file
// that cannot be parsed is an error.
//
// # Internal Architecture
//
//   - configDTO: pointer fields for TOML parsing, so "not set" (nil) and
//     "set to zero value" can be told apart.
//
//   - legacyDTO: section structs for the INI file, converted to a configDTO
//     where empty values count as unset.
//
//   - Config: public struct with value fields and path helpers for the
//     layout below ClashRoot.
//
//   - ConfigSource: orchestrates loading from multiple sources and manages
//     their merging.
package conf
