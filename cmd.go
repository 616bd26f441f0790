package epitools

import (
	"errors"
	"os"

	"git.arvados.org/arvados.git/lib/cmd"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// errUsage is returned by a subcommand's run method when flag parsing
// failed. The flag package has already printed the details.
var errUsage = errors.New("invalid command line arguments")

var (
	handler = cmd.Multi(map[string]cmd.Handler{
		"version":   cmd.Version,
		"-version":  cmd.Version,
		"--version": cmd.Version,

		"rows2matrix": &rows2matrix{},
		"collapse":    &collapser{},
		"cumulative":  &cumulative{},
		"normalize":   &normalizer{},
		"bin":         &binner{},
		"multi-merge": &multiMerger{},
		"anonymize":   &anonymizer{},
		"clean-data":  &cleanData{},
		"reformat":    &reformatter{},
		"flip":        &flipper{},
		"stack":       &stacker{},
		"reshape":     &reshaper{},
	})
)

func Main() {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		logrus.StandardLogger().Formatter = &logrus.TextFormatter{DisableTimestamp: true}
	}
	os.Exit(handler.RunCommand(os.Args[0], os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
