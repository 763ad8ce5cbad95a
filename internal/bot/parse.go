package bot

import (
	"strings"
)

// Command is a parsed chat command.
type Command struct {
	// Name is the lowercased command word without the prefix.
	Name string
	// Args are the positional words after the name, flags removed.
	Args []string
	// Flags holds every --flag, lowercased, without dashes.
	Flags map[string]bool
	// Text is everything after the name with flags removed, single-spaced.
	Text string
}

// legacyFlags are single-dash flags accepted for compatibility.
var legacyFlags = map[string]string{
	"-withimages":  "with-images",
	"-with-images": "with-images",
	"-ai":          "ai",
}

// Parse splits content into a Command. It reports false when content does
// not start with prefix followed by a command word.
func Parse(content, prefix string) (Command, bool) {
	content = strings.TrimSpace(content)
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return Command{}, false
	}
	fields := strings.Fields(content[len(prefix):])
	if len(fields) == 0 {
		return Command{}, false
	}

	cmd := Command{Name: strings.ToLower(fields[0]), Flags: map[string]bool{}}
	for _, f := range fields[1:] {
		lower := strings.ToLower(f)
		if name, ok := legacyFlags[lower]; ok {
			cmd.Flags[name] = true
			continue
		}
		if strings.HasPrefix(lower, "--") && len(lower) > 2 {
			cmd.Flags[lower[2:]] = true
			continue
		}
		cmd.Args = append(cmd.Args, f)
	}
	cmd.Text = strings.Join(cmd.Args, " ")
	return cmd, true
}

// Arg returns the i-th positional argument or "".
func (c Command) Arg(i int) string {
	if i < len(c.Args) {
		return c.Args[i]
	}
	return ""
}

// Sub returns the lowercased first argument, the subcommand.
func (c Command) Sub() string {
	return strings.ToLower(c.Arg(0))
}

// Rest returns the arguments after the i-th joined by spaces.
func (c Command) Rest(i int) string {
	if i+1 >= len(c.Args) {
		return ""
	}
	return strings.Join(c.Args[i+1:], " ")
}
