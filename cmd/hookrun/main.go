// hookrun runs a configured hook class once and exits.
//
// It is the manual companion to the hookd daemon: an operator draining a node
// can run the epilog by hand, or verify a new prolog script against a fake
// job before putting it in rotation. The process exit code mirrors the hook
// outcome, so hookrun works in scripts and in ExecStartPre= lines.
//
// Usage:
//
//	hookrun [flags] <class>
//	hookrun -job-id 1234 -job-user alice prolog
//	hookrun -pattern '/tmp/test.d/*.sh' -max-wait 10 prolog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/opsforge/hookd/internal/config"
	"github.com/opsforge/hookd/internal/hooks"
	"github.com/opsforge/hookd/internal/logging"
	"github.com/opsforge/hookd/internal/script"
	"github.com/opsforge/hookd/internal/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", config.DefaultConfigPath, "path to configuration file")
	pattern := flag.String("pattern", "", "override the script glob pattern for the class")
	maxWait := flag.Int("max-wait", 0, "override the wait budget in seconds (0 kills at the first check, -1 for unbounded)")
	jobID := flag.Uint64("job-id", 0, "job ID exported to the scripts")
	jobUser := flag.String("job-user", "", "job owner exported to the scripts")
	nodeName := flag.String("node", "", "override the node name exported to the scripts")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		return 0
	}

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: hookrun [flags] <class>")
		flag.PrintDefaults()
		return 2
	}
	className := flag.Arg(0)

	// The flag default cannot double as "unset": zero is a meaningful
	// budget (kill at the first supervision check).
	maxWaitSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "max-wait" {
			maxWaitSet = true
		}
	})

	logger := logging.SetupLogger(*logLevel)

	// The config file supplies class patterns and budgets. With -pattern set
	// the config is optional, so a test box without /etc/hookd still works.
	node := *nodeName
	var classes []hooks.Class
	cfg, err := config.Load(*configPath)
	if err == nil {
		if node == "" {
			node = cfg.NodeName
		}
		classes = cfg.HookClasses()
	} else if *pattern == "" {
		fmt.Fprintf(os.Stderr, "ERROR: failed to load configuration from %s: %v\n", *configPath, err)
		return 1
	}

	if node == "" {
		hostname, err := os.Hostname()
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: failed to determine node name: %v\n", err)
			return 1
		}
		node = hostname
	}

	if *pattern != "" || maxWaitSet {
		classes = overrideClass(classes, className, *pattern, *maxWait, maxWaitSet)
	}

	runner := script.NewRunner(logger)
	handler := hooks.NewHandler(classes, runner, node, logger)

	result, err := handler.RunClass(className, *jobID, *jobUser)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}

	if !result.Succeeded() {
		fmt.Fprintf(os.Stderr, "%s failed: %s\n", className, describeFailure(result))
		if result.ExitCode > 0 {
			return result.ExitCode
		}
		return 1
	}

	return 0
}

// overrideClass applies the command-line pattern and budget overrides to the
// named class, adding it when the config does not define it. An unset budget
// keeps the configured one; a new class without one waits indefinitely.
func overrideClass(classes []hooks.Class, name, pattern string, maxWait int, maxWaitSet bool) []hooks.Class {
	for i := range classes {
		if classes[i].Name == name {
			if pattern != "" {
				classes[i].Pattern = pattern
			}
			if maxWaitSet {
				classes[i].MaxWait = maxWait
			}
			return classes
		}
	}
	if !maxWaitSet {
		maxWait = -1
	}
	return append(classes, hooks.Class{Name: name, Pattern: pattern, MaxWait: maxWait})
}

func describeFailure(result *hooks.Result) string {
	if result.Error != "" {
		return result.Error
	}
	return script.FormatStatus(result.Status)
}
