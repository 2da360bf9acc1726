package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/davecgh/go-spew/spew"

	"github.com/linuxboot/uefisettings/pkg/cmdutil"
	"github.com/linuxboot/uefisettings/pkg/dispatch"
	"github.com/linuxboot/uefisettings/pkg/hii"
	"github.com/linuxboot/uefisettings/pkg/identity"
	"github.com/linuxboot/uefisettings/pkg/kind"
	"github.com/linuxboot/uefisettings/pkg/spellings"
)

// cliContext carries the shared collaborators every subcommand's Run
// needs, the way gosedctl's context struct would if it had any (ours
// isn't empty, since this tool has a stateful dispatcher to share
// instead of re-deriving per subcommand).
type cliContext struct {
	dispatcher *dispatch.Dispatcher
	stdout     io.Writer
	stderr     io.Writer
}

type identifyCmd struct{}

type getCmd struct {
	Name      string `arg:"" help:"Canonical setting name"`
	Backend   string `optional:"" enum:",hii,ilo" help:"Force a specific backend (hii or ilo); default tries both"`
	Variation bool   `optional:"" help:"Treat name as a raw backend spelling, bypassing the spellings table"`
}

type setCmd struct {
	Name      string `arg:"" help:"Canonical setting name"`
	Value     string `arg:"" help:"New value"`
	Backend   string `optional:"" enum:",hii,ilo" help:"Force a specific backend (hii or ilo); default tries both"`
	Variation bool   `optional:"" help:"Treat name as a raw backend spelling, bypassing the spellings table"`
	Yes       bool   `optional:"" short:"y" help:"Skip the confirmation prompt for free-form answers"`
}

type hiiCmd struct {
	ExtractDb   extractDbCmd   `cmd:"" name:"extract-db" help:"Copy the raw HiiDB image out to a file"`
	ListStrings listStringsCmd `cmd:"" name:"list-strings" help:"Dump every string package's id -> string map"`
	ShowIfr     showIfrCmd     `cmd:"" name:"show-ifr" help:"Dump the parsed form/question tree"`
}

type extractDbCmd struct {
	Path string `arg:"" type:"writablefile" help:"Output file path"`
}

type listStringsCmd struct {
	Language string `optional:"" help:"Restrict output to a single language, e.g. en-US"`
}

type showIfrCmd struct {
	Debug bool `optional:"" help:"Dump the full tree with go-spew instead of a compact summary"`
}

type iloCmd struct {
	ShowAttributes showAttributesCmd `cmd:"" name:"show-attributes" help:"List every BIOS attribute iLO currently reports"`
}

type showAttributesCmd struct{}

var cli struct {
	Output string `help:"Output format; one of [table, json, openmetrics]" enum:"table,json,openmetrics" default:"table" short:"o"`

	Identify identifyCmd `cmd:"" help:"Detect which backends this host exposes"`
	Get      getCmd      `cmd:"" help:"Read a setting by canonical name"`
	Set      setCmd      `cmd:"" help:"Write a setting by canonical name"`
	Hii      hiiCmd      `cmd:"" help:"HII backend operations"`
	Ilo      iloCmd      `cmd:"" help:"iLO backend operations"`
}

func (c *identifyCmd) Run(rc *cliContext) error {
	p, err := rc.dispatcher.Identify(context.Background())
	// Presence is still meaningful on a BackendUnavailable error (both
	// false); only a non-BackendUnavailable error is a hard failure.
	if err != nil && !kind.Is(err, kind.BackendUnavailable) {
		return err
	}

	id := machineIdentity()

	switch cli.Output {
	case "json":
		return json.NewEncoder(rc.stdout).Encode(struct {
			Hii, Ilo bool
			Identity *identity.Identity
		}{p.Hii, p.Ilo, id})
	case "openmetrics":
		return emitIdentifyMetrics(rc.stdout, rc.dispatcher, p)
	default:
		fmt.Fprintf(rc.stdout, "hii: %v\nilo: %v\nvendor: %s\nproduct: %s\n", p.Hii, p.Ilo, id.Vendor, id.ProductName)
	}
	if err != nil {
		return err
	}
	return nil
}

// dispatcherFor returns the shared dispatcher, or a copy with an empty
// spellings table when --variation asks to bypass translation entirely.
func dispatcherFor(rc *cliContext, variation bool) *dispatch.Dispatcher {
	if !variation {
		return rc.dispatcher
	}
	d := *rc.dispatcher
	d.Spellings = spellings.NewTable(nil)
	return &d
}

func (c *getCmd) Run(rc *cliContext) error {
	if cli.Output == "openmetrics" {
		return fmt.Errorf("get does not support --output openmetrics")
	}
	d := dispatcherFor(rc, c.Variation)
	results, err := d.Get(context.Background(), c.Name, dispatch.Backend(strings.ToLower(c.Backend)))
	if err != nil {
		return err
	}
	return printResults(rc.stdout, results)
}

func (c *setCmd) Run(rc *cliContext) error {
	if cli.Output == "openmetrics" {
		return fmt.Errorf("set does not support --output openmetrics")
	}
	d := dispatcherFor(rc, c.Variation)
	backend := dispatch.Backend(strings.ToLower(c.Backend))

	if !c.Yes && !isOneOfAnswer(context.Background(), d, c.Name, backend) {
		ok, err := cmdutil.Confirm(os.Stdin, rc.stdout,
			fmt.Sprintf("%q is not a multiple-choice setting; really set it to %q?", c.Name, c.Value))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(rc.stdout, "aborted, nothing written")
			return nil
		}
	}

	results, err := d.Set(context.Background(), c.Name, c.Value, backend)
	if err != nil {
		return err
	}
	return printResults(rc.stdout, results)
}

// isOneOfAnswer peeks at the current value to see whether it came with a
// fixed option list. A failed or inconclusive peek is treated as "not
// OneOf" so the confirmation prompt errs on the side of asking.
func isOneOfAnswer(ctx context.Context, d *dispatch.Dispatcher, name string, backend dispatch.Backend) bool {
	results, err := d.Get(ctx, name, backend)
	if err != nil || len(results) == 0 {
		return false
	}
	for _, r := range results {
		if len(r.Options) == 0 {
			return false
		}
	}
	return true
}

func printResults(w io.Writer, results []dispatch.Result) error {
	if cli.Output == "json" {
		return json.NewEncoder(w).Encode(results)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "BACKEND\tANSWER\tMODIFIED\tTRANSLATED\tOPTIONS\tERROR\n")
	for _, r := range results {
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%v\t%v\t%s\t%s\n",
			r.Backend, r.Answer, r.Modified, r.IsTranslated, strings.Join(r.Options, ","), errText)
	}
	return tw.Flush()
}

func (c *extractDbCmd) Run(rc *cliContext) error {
	loc := hii.NewLocator()
	raw, err := loc.Locate(context.Background())
	if err != nil {
		return err
	}
	// Fail closed: don't write a file the parser itself rejects outright.
	if _, err := hii.ParseDatabase(raw); err != nil {
		return fmt.Errorf("extracted image failed validation, not writing %s: %w", c.Path, err)
	}
	return os.WriteFile(c.Path, raw, 0644)
}

func (c *listStringsCmd) Run(rc *cliContext) error {
	loc := hii.NewLocator()
	raw, err := loc.Locate(context.Background())
	if err != nil {
		return err
	}
	db, err := hii.ParseDatabase(raw)
	if err != nil {
		return err
	}
	for _, list := range db.Lists {
		langs := make([]string, 0, len(list.Strings))
		for lang := range list.Strings {
			if c.Language != "" && lang != c.Language {
				continue
			}
			langs = append(langs, lang)
		}
		sort.Strings(langs)
		for _, lang := range langs {
			ids := make([]uint32, 0, len(list.Strings[lang]))
			for id := range list.Strings[lang] {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
			for _, id := range ids {
				fmt.Fprintf(rc.stdout, "%s\t%s\t%d\t%s\n", list.GUID, lang, id, list.Strings[lang][id])
			}
		}
	}
	return nil
}

func (c *showIfrCmd) Run(rc *cliContext) error {
	loc := hii.NewLocator()
	raw, err := loc.Locate(context.Background())
	if err != nil {
		return err
	}
	db, err := hii.ParseDatabase(raw)
	if err != nil {
		return err
	}
	if c.Debug {
		spew.Fdump(rc.stdout, db)
		return nil
	}
	for _, list := range db.Lists {
		fmt.Fprintf(rc.stdout, "package-list %s\n", list.GUID)
		for _, fs := range list.FormSets {
			printFormSet(rc.stdout, list, fs)
		}
		for _, w := range list.Warnings {
			fmt.Fprintf(rc.stdout, "  warning: %s\n", w)
		}
	}
	return nil
}

func printFormSet(w io.Writer, list *hii.ParsedList, fs *hii.FormSet) {
	fmt.Fprintf(w, "  formset %s\n", fs.GUID)
	for _, form := range fs.Forms {
		for _, q := range form.Questions {
			prompt, _ := list.ResolveString([]string{"en-US"}, q.Prompt)
			fmt.Fprintf(w, "    question %q kind=%s width=%d\n", prompt, q.Kind, q.Width)
			for _, opt := range q.Options {
				text, _ := list.ResolveString([]string{"en-US"}, opt.Text)
				fmt.Fprintf(w, "      option %d = %q\n", opt.Value, text)
			}
		}
	}
}

func (c *showAttributesCmd) Run(rc *cliContext) error {
	adapter, err := rc.dispatcher.OpenIlo(context.Background())
	if err != nil {
		return err
	}
	attrs, err := adapter.ListAttributes(context.Background())
	if err != nil {
		return err
	}

	switch cli.Output {
	case "json":
		return json.NewEncoder(rc.stdout).Encode(attrs)
	case "openmetrics":
		return emitAttributeMetrics(rc.stdout, attrs)
	default:
		names := make([]string, 0, len(attrs))
		for name := range attrs {
			names = append(names, name)
		}
		sort.Strings(names)
		tw := tabwriter.NewWriter(rc.stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintf(tw, "ATTRIBUTE\tVALUE\n")
		for _, name := range names {
			fmt.Fprintf(tw, "%s\t%v\n", name, attrs[name])
		}
		return tw.Flush()
	}
}

// machineIdentity reads the DMI strings identify reports alongside
// backend presence, grounded on tcgdiskstat's per-device info fields.
func machineIdentity() *identity.Identity {
	id, err := identity.NewReader().Read()
	if err != nil {
		return &identity.Identity{}
	}
	return id
}
