// Package flagx contains helpers for multi-pass flag parsing: the config
// layer first extracts the config-file path, loads defaults and the JSON
// overlay, and only then parses the full flag set.
package flagx

import (
	"flag"
	"strings"
)

// FilterArgs returns the subset of args containing only the allowed flags
// and their values.
//
// Supported formats:
//  1. Flag and value as separate arguments:  -c conf.json
//  2. Flag and value combined with '=':      --config=conf.json
//
// args is usually os.Args[1:]; allowedFlags lists the flag tokens to keep
// (e.g. []string{"-c", "--config"}).
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		// "--flag=value" or "-f=value" form
		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name := strings.SplitN(arg, "=", 2)[0]
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		// separate-argument form; a following token that does not start
		// with '-' is treated as this flag's value
		if _, ok := allowed[arg]; ok {
			filtered = append(filtered, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++
			}
		}
	}

	return filtered
}

// ConfigPathFlag extracts the config file path provided via -c or -config
// from args, ignoring every other argument. This lets the application parse
// the config location before the main flag set is defined, without tripping
// over flags it does not know yet.
//
// Returns an empty string when neither flag is present.
func ConfigPathFlag(args []string) string {
	var config string

	filtered := FilterArgs(args, []string{"-c", "-config"})

	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.StringVar(&config, "config", "", "Path to config file")
	fs.StringVar(&config, "c", "", "Path to config file (short)")
	_ = fs.Parse(filtered)

	return config
}
