// Package flagx helps several flag sets share os.Args: each loader picks out
// only the flags it owns before parsing.
package flagx

import (
	"flag"
	"strings"
)

// Pick returns the arguments in args that belong to one of names, keeping
// their values. Both "-n value" and "-n=value" forms are recognised; a
// following argument that starts with "-" is never taken as a value.
func Pick(args []string, names ...string) []string {
	owned := make(map[string]bool, len(names))
	for _, n := range names {
		owned[n] = true
	}

	out := []string{}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if name, _, found := strings.Cut(arg, "="); found && strings.HasPrefix(arg, "-") {
			if owned[name] {
				out = append(out, arg)
			}
			continue
		}
		if !owned[arg] {
			continue
		}
		out = append(out, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			i++
			out = append(out, args[i])
		}
	}
	return out
}

// ConfigPath returns the JSON config file named by -c or -config in args,
// or "" when neither is given. The last occurrence wins.
func ConfigPath(args []string) string {
	var path string

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.StringVar(&path, "config", "", "path to JSON config file")
	fs.StringVar(&path, "c", "", "path to JSON config file (shorthand)")
	_ = fs.Parse(Pick(args, "-c", "-config", "--config"))

	return path
}
