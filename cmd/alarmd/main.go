package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/alarmd/cmd/alarmd/commands"
	"git.home.luguber.info/inful/alarmd/internal/foundation/errors"
	"git.home.luguber.info/inful/alarmd/internal/version"
)

func main() {
	var cli commands.CLI
	ctx := kong.Parse(&cli,
		kong.Name("alarmd"),
		kong.Description("Task-gated alarm clock daemon and control client."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)

	err := ctx.Run(&commands.Global{Logger: slog.Default(), Out: os.Stdout}, &cli)
	errors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
}
