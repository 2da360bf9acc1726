package main

import (
	"os"

	"github.com/alecthomas/kong"

	"github.com/linuxboot/uefisettings/pkg/cmdutil"
	"github.com/linuxboot/uefisettings/pkg/dispatch"
	"github.com/linuxboot/uefisettings/pkg/spellings"
)

const (
	programName = "uefisettings"
	programDesc = "Read and write BIOS/firmware settings via the HII or iLO backend"
)

func main() {
	kctx := kong.Parse(&cli,
		kong.Name(programName),
		kong.Description(programDesc),
		kong.UsageOnError(),
		kong.NamedMapper("writablefile", cmdutil.WritableFileMapper()),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	rc := &cliContext{
		dispatcher: &dispatch.Dispatcher{
			Spellings: spellings.Builtin,
			OpenHii:   dispatch.DefaultHiiOpener(),
			OpenIlo:   dispatch.DefaultIloOpener(),
		},
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	err := kctx.Run(rc)
	kctx.FatalIfErrorf(err)
}
