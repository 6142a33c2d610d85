package main

import "strings"

// reorderInterspersedFlags moves flag tokens ahead of positionals so the
// flag package accepts invocations like "snapshot ./data --json". Flags in
// valueFlags consume the following token as their value. Everything after
// "--" stays positional.
func reorderInterspersedFlags(arguments []string, valueFlags map[string]bool) []string {
	var flags, positionals []string
	for index := 0; index < len(arguments); index++ {
		argument := arguments[index]
		if argument == "--" {
			positionals = append(positionals, arguments[index+1:]...)
			break
		}
		if len(argument) < 2 || !strings.HasPrefix(argument, "-") {
			positionals = append(positionals, argument)
			continue
		}
		flags = append(flags, argument)
		if strings.Contains(argument, "=") {
			continue
		}
		name := strings.TrimLeft(argument, "-")
		if valueFlags[name] && index+1 < len(arguments) {
			index++
			flags = append(flags, arguments[index])
		}
	}
	return append(flags, positionals...)
}

// splitCommandTail separates "... -- command args" into the leading flags
// and the command to execute.
func splitCommandTail(arguments []string) (flags, command []string) {
	for index, argument := range arguments {
		if argument == "--" {
			return arguments[:index], arguments[index+1:]
		}
	}
	return arguments, nil
}
