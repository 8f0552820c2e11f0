package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"winapigen/internal/catalog"
	"winapigen/internal/diag"
	"winapigen/internal/layout"
	"winapigen/internal/resolve"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the symbol catalog",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog entries",
	Args:  cobra.NoArgs,
	RunE:  catalogListExecution,
}

var catalogShowCmd = &cobra.Command{
	Use:   "show NAME...",
	Short: "Describe catalog entries",
	Args:  cobra.MinimumNArgs(1),
	RunE:  catalogShowExecution,
}

var catalogCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the catalog and lay out every type on every profile",
	Args:  cobra.NoArgs,
	RunE:  catalogCheckExecution,
}

var catalogResolveCmd = &cobra.Command{
	Use:   "resolve NAME...",
	Short: "Print the dependency closure of the named symbols",
	Args:  cobra.MinimumNArgs(1),
	RunE:  catalogResolveExecution,
}

var catalogLayoutCmd = &cobra.Command{
	Use:   "layout NAME...",
	Short: "Print the native layout of structs and unions",
	Args:  cobra.MinimumNArgs(1),
	RunE:  catalogLayoutExecution,
}

func init() {
	catalogListCmd.Flags().String("kind", "", "only entries of this kind (function|struct|union|callback|constant|alias)")
	catalogListCmd.Flags().String("dll", "", "only functions exported by this DLL")
	catalogLayoutCmd.Flags().StringSlice("abi", nil, "profiles to show (default: all)")

	catalogCmd.AddCommand(catalogListCmd, catalogShowCmd, catalogCheckCmd, catalogResolveCmd, catalogLayoutCmd)
}

func catalogListExecution(cmd *cobra.Command, args []string) error {
	kind, _ := cmd.Flags().GetString("kind")
	dll, _ := cmd.Flags().GetString("dll")
	cat, err := loadCatalog(cmd)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	for _, name := range cat.Names() {
		e, _ := cat.Lookup(name)
		if kind != "" && string(e.Kind) != kind {
			continue
		}
		if dll != "" && (e.Function == nil || !strings.EqualFold(e.Function.DLL, dll)) {
			continue
		}
		fmt.Fprintf(w, "%-9s %s\n", e.Kind, name)
	}
	return nil
}

func catalogShowExecution(cmd *cobra.Command, args []string) error {
	cat, err := loadCatalog(cmd)
	if err != nil {
		return err
	}
	for i, name := range args {
		e, ok := cat.Lookup(name)
		if !ok {
			return diag.Errorf(diag.ErrUnknownSymbol, diag.ResUnknownSymbol, name, "unknown symbol %q", name)
		}
		if i > 0 {
			fmt.Fprintln(cmd.OutOrStdout())
		}
		describeEntry(cmd.OutOrStdout(), e)
	}
	return nil
}

func describeEntry(w io.Writer, e *catalog.Entry) {
	fmt.Fprintf(w, "%s %s\n", e.Kind, e.Name)
	if e.Doc != "" {
		fmt.Fprintf(w, "  doc: %s\n", e.Doc)
	}
	switch e.Kind {
	case catalog.KindFunction:
		f := e.Function
		fmt.Fprintf(w, "  dll: %s, %s\n", f.DLL, f.CallConv)
		describeParams(w, f.Params)
		fmt.Fprintf(w, "  returns %s, failure %s", f.Returns, f.Failure)
		if f.LastError != catalog.LastErrorNone {
			fmt.Fprintf(w, ", last error %s", f.LastError)
		}
		fmt.Fprintln(w)
		if f.Release != "" {
			fmt.Fprintf(w, "  released by %s\n", f.Release)
		}
		if len(f.Arch) > 0 {
			fmt.Fprintf(w, "  only on %s\n", strings.Join(f.Arch, ", "))
		}
	case catalog.KindStruct, catalog.KindUnion:
		a := e.Aggregate
		for _, fld := range a.Fields {
			fmt.Fprintf(w, "  %s %s\n", fld.Name, fld.Type)
		}
		if a.Pack != 0 {
			fmt.Fprintf(w, "  pack %d\n", a.Pack)
		}
		if a.SizeField != "" {
			fmt.Fprintf(w, "  size field %s\n", a.SizeField)
		}
	case catalog.KindCallback:
		fmt.Fprintf(w, "  %s\n", e.Callback.CallConv)
		describeParams(w, e.Callback.Params)
		fmt.Fprintf(w, "  returns %s\n", e.Callback.Returns)
	case catalog.KindConstant:
		c := e.Constant
		switch c.Form {
		case catalog.ConstString:
			fmt.Fprintf(w, "  %s = %q\n", c.Type, c.Text)
		case catalog.ConstGUID:
			fmt.Fprintf(w, "  %s = {%s}\n", c.Type, c.Text)
		default:
			fmt.Fprintf(w, "  %s = %d\n", c.Type, c.Int)
		}
	case catalog.KindAlias:
		fmt.Fprintf(w, "  = %s\n", e.Alias.Target)
	}
}

func describeParams(w io.Writer, ps []catalog.Param) {
	for _, p := range ps {
		var tags []string
		if p.Dir != "" && p.Dir != catalog.DirIn {
			tags = append(tags, string(p.Dir))
		}
		if p.Optional {
			tags = append(tags, "optional")
		}
		if p.Ownership != "" && p.Ownership != catalog.Borrowed {
			tags = append(tags, "ownership="+string(p.Ownership))
		}
		if p.Release != "" {
			tags = append(tags, "release="+p.Release)
		}
		if p.Retained {
			tags = append(tags, "retained")
		}
		if p.SizeOf != "" {
			tags = append(tags, "size_of="+p.SizeOf)
		}
		if b := p.Buffer; b != nil {
			tags = append(tags, "buffer="+string(b.Kind))
		}
		line := fmt.Sprintf("  param %s %s", p.Name, p.Type)
		if len(tags) > 0 {
			line += " [" + strings.Join(tags, ", ") + "]"
		}
		fmt.Fprintln(w, line)
	}
}

func catalogCheckExecution(cmd *cobra.Command, args []string) error {
	cat, err := loadCatalog(cmd)
	if err != nil {
		return err
	}
	bag := diag.NewBag(catalog.MaxDiagnostics)
	problems := layout.Verify(cat, diag.BagReporter{Bag: bag})
	if problems > 0 {
		return diag.FromBag(diag.ErrConfiguration, bag)
	}
	if !quiet(cmd) {
		fmt.Fprintf(cmd.OutOrStdout(), "catalog %s: %d entries, %d profiles, ok\n",
			cat.Version(), cat.Len(), len(cat.Profiles()))
	}
	return nil
}

func catalogResolveExecution(cmd *cobra.Command, args []string) error {
	cat, err := loadCatalog(cmd)
	if err != nil {
		return err
	}
	m, err := resolve.Resolve(cat, args)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	for i, tier := range m.Tiers {
		fmt.Fprintf(w, "tier %d:\n", i)
		for _, name := range tier {
			e := m.Entries[name]
			if via, ok := m.Via[name]; ok && !m.Requested[name] {
				fmt.Fprintf(w, "  %-9s %s (via %s)\n", e.Kind, name, via)
			} else {
				fmt.Fprintf(w, "  %-9s %s\n", e.Kind, name)
			}
		}
	}
	return nil
}

func catalogLayoutExecution(cmd *cobra.Command, args []string) error {
	abis, _ := cmd.Flags().GetStringSlice("abi")
	cat, err := loadCatalog(cmd)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	for _, p := range cat.Profiles() {
		if len(abis) > 0 && !slices.Contains(abis, p.Name) {
			continue
		}
		engine := layout.New(layout.TargetFor(p), cat)
		for _, name := range args {
			e, ok := cat.Lookup(name)
			if !ok {
				return diag.Errorf(diag.ErrUnknownSymbol, diag.ResUnknownSymbol, name, "unknown symbol %q", name)
			}
			if e.Kind != catalog.KindStruct && e.Kind != catalog.KindUnion {
				return diag.Errorf(diag.ErrConfiguration, diag.LayUnsized, name, "%s is a %s, not a struct or union", name, e.Kind)
			}
			l, err := engine.LayoutNamed(name)
			if err != nil {
				return diag.FromBag(diag.ErrConfiguration, bagOf(err))
			}
			printLayout(w, p.Name, name, l)
		}
	}
	return nil
}

func printLayout(w io.Writer, profile, name string, l layout.TypeLayout) {
	fmt.Fprintf(w, "%s on %s: size %d, align %d", name, profile, l.Size, l.Align)
	if l.Pack != 0 {
		fmt.Fprintf(w, ", pack %d", l.Pack)
	}
	fmt.Fprintln(w)
	for _, f := range l.Fields {
		note := ""
		if f.Raw {
			note = "  raw bytes in Go"
		} else if f.Pad > 0 {
			note = fmt.Sprintf("  %d bytes padding before", f.Pad)
		}
		fmt.Fprintf(w, "  %4d %4d  %-24s %s%s\n", f.Offset, f.Size, f.Name, f.Type, note)
	}
}

// bagOf turns a layout failure into a one-item bag.
func bagOf(err error) *diag.Bag {
	bag := diag.NewBag(1)
	if le, ok := err.(*layout.LayoutError); ok {
		bag.Add(le.Diagnostic())
	} else {
		bag.Add(diag.NewError(diag.LayUnsized, "", err.Error()))
	}
	return bag
}
