package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/objectledge/coral/internal/errors"
	"github.com/objectledge/coral/internal/ir"
	"github.com/objectledge/coral/internal/logger"
	"github.com/objectledge/coral/internal/schema"
	"github.com/objectledge/coral/internal/schemaspec"
)

// SchemaInfo is the class listing of schema show.
type SchemaInfo struct {
	Fingerprint string      `json:"fingerprint"`
	Classes     []ClassInfo `json:"classes"`
}

// ClassInfo describes one resource class for schema show.
type ClassInfo struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Flags       []string        `json:"flags,omitempty"`
	Handler     string          `json:"handler"`
	Table       string          `json:"table,omitempty"`
	Parents     []string        `json:"parents,omitempty"`
	Attributes  []AttributeInfo `json:"attributes,omitempty"`
	Permissions []string        `json:"permissions,omitempty"`
}

// AttributeInfo describes one attribute of a class.
type AttributeInfo struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Domain     string   `json:"domain,omitempty"`
	Flags      []string `json:"flags,omitempty"`
	DeclaredBy string   `json:"declared_by"`
}

// NewSchemaCommand creates the schema command group.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Apply and inspect the resource class schema",
	}
	cmd.AddCommand(newSchemaApplyCommand(rootOpts))
	cmd.AddCommand(newSchemaShowCommand(rootOpts))
	return cmd
}

func newSchemaApplyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "apply [schema-dir]",
		Short: "Apply CUE schema files to the database",
		Long: `Load the CUE schema files in a directory and create the attribute
classes, resource classes, inheritance edges, attributes and permissions
the database does not have yet.

The files form one CUE package: each must start with the same package
clause, for example "package library". Applying the same schema twice is
a no-op. The directory defaults to schema.dir from the configuration.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := rootOpts.effectiveConfig().Schema.Dir
			if len(args) == 1 {
				dir = args[0]
			}
			return runSchemaApply(rootOpts, dir, cmd)
		},
	}
}

func runSchemaApply(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	spec, loadErrors := schemaspec.LoadDir(dir)
	if len(loadErrors) > 0 {
		return formatter.Error(loadFailure(loadErrors[0]), errorStrings(loadErrors))
	}
	formatter.VerboseLog("Loaded %d attribute class(es) and %d class(es) from %s",
		len(spec.AttributeClasses), len(spec.Classes), dir)

	e, err := openEnv(cmd.Context(), opts)
	if err != nil {
		return dbError(formatter, err)
	}
	defer e.Close()

	result, err := schemaspec.Apply(cmd.Context(), e.graph, spec, logger.Logger)
	if err != nil {
		var ve schemaspec.ValidationError
		if !errors.As(err, &ve) {
			err = withCode(ErrCodeApply, ExitFailure, "schema apply failed", err)
		}
		if result != nil {
			return formatter.Error(err, result)
		}
		return formatter.Error(err, nil)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "✓ Schema applied to %s\n", opts.effectiveConfig().Database.Path)
	fmt.Fprintf(w, "  %d attribute class(es), %d class(es), %d parent edge(s), %d attribute(s), %d permission(s) created\n",
		result.AttributeClasses, result.Classes, result.Parents, result.Attributes, result.Permissions)
	return nil
}

func newSchemaShowCommand(rootOpts *RootOptions) *cobra.Command {
	var builtins bool
	cmd := &cobra.Command{
		Use:   "show [class]",
		Short: "Show resource classes",
		Long: `Without an argument, list every resource class. With a class name,
show its flags, storage, parents, attributes (declared and inherited)
and effective permissions.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return runSchemaShow(rootOpts, name, builtins, cmd)
		},
	}
	cmd.Flags().BoolVar(&builtins, "builtins", false, "include builtin attributes")
	return cmd
}

func runSchemaShow(opts *RootOptions, name string, builtins bool, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	e, err := openEnv(cmd.Context(), opts)
	if err != nil {
		return dbError(formatter, err)
	}
	defer e.Close()

	if name == "" {
		fp, err := e.graph.Fingerprint()
		if err != nil {
			return dbError(formatter, err)
		}
		info := SchemaInfo{Fingerprint: fp}
		for _, c := range e.graph.ResourceClasses() {
			info.Classes = append(info.Classes, describeClass(e.graph, c, false, false))
		}
		if formatter.Format == "json" {
			return formatter.Success(info)
		}
		writeClassList(cmd.OutOrStdout(), info)
		return nil
	}

	class, err := e.graph.ResourceClass(name)
	if err != nil {
		return formatter.Error(err, nil)
	}

	info := describeClass(e.graph, class, true, builtins)
	if formatter.Format == "json" {
		return formatter.Success(info)
	}
	writeClass(cmd.OutOrStdout(), info)
	return nil
}

func describeClass(g *schema.Graph, c *schema.ResourceClass, attrs, builtins bool) ClassInfo {
	info := ClassInfo{
		ID:      int64(c.ID()),
		Name:    c.Name(),
		Flags:   c.Flags().Names(),
		Handler: c.Handler(),
		Table:   c.Table(),
	}
	for _, p := range c.DirectParents() {
		info.Parents = append(info.Parents, p.Name())
	}
	if !attrs {
		return info
	}
	all := c.AllAttributes()
	if builtins && c != g.Node() {
		// every class has the node's builtin attributes without inheriting them
		all = append(all, g.Node().DeclaredAttributes()...)
	}
	seen := make(map[string]bool)
	for _, a := range all {
		if (a.Has(ir.AttrBuiltin) && !builtins) || seen[a.Name()] {
			continue
		}
		seen[a.Name()] = true
		declaredBy := ""
		if d, err := g.ResourceClassByID(a.DeclaringClassID()); err == nil {
			declaredBy = d.Name()
		}
		info.Attributes = append(info.Attributes, AttributeInfo{
			Name:       a.Name(),
			Type:       a.Type().Name,
			Domain:     a.Domain(),
			Flags:      a.Flags().Names(),
			DeclaredBy: declaredBy,
		})
	}
	info.Permissions = c.EffectivePermissions()
	return info
}

func writeClassList(w io.Writer, info SchemaInfo) {
	for _, c := range info.Classes {
		fmt.Fprintf(w, "%-4d %s", c.ID, c.Name)
		if len(c.Parents) > 0 {
			fmt.Fprintf(w, " : %s", strings.Join(c.Parents, ", "))
		}
		if len(c.Flags) > 0 {
			fmt.Fprintf(w, " [%s]", strings.Join(c.Flags, " "))
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "\n%d class(es), fingerprint %s\n", len(info.Classes), shortFingerprint(info.Fingerprint))
}

func writeClass(w io.Writer, c ClassInfo) {
	fmt.Fprintf(w, "Class: %s (#%d)\n", c.Name, c.ID)
	if len(c.Flags) > 0 {
		fmt.Fprintf(w, "  Flags: %s\n", strings.Join(c.Flags, " "))
	}
	fmt.Fprintf(w, "  Storage: %s", c.Handler)
	if c.Table != "" {
		fmt.Fprintf(w, " (%s)", c.Table)
	}
	fmt.Fprintln(w)
	if len(c.Parents) > 0 {
		fmt.Fprintf(w, "  Parents: %s\n", strings.Join(c.Parents, ", "))
	}
	if len(c.Attributes) > 0 {
		fmt.Fprintln(w, "  Attributes:")
		for _, a := range c.Attributes {
			fmt.Fprintf(w, "    %s: %s", a.Name, a.Type)
			if a.Domain != "" {
				fmt.Fprintf(w, " (%s)", a.Domain)
			}
			if len(a.Flags) > 0 {
				fmt.Fprintf(w, " [%s]", strings.Join(a.Flags, " "))
			}
			if a.DeclaredBy != c.Name {
				fmt.Fprintf(w, " from %s", a.DeclaredBy)
			}
			fmt.Fprintln(w)
		}
	}
	if len(c.Permissions) > 0 {
		fmt.Fprintf(w, "  Permissions: %s\n", strings.Join(c.Permissions, ", "))
	}
}

// newFormatter builds the formatter every command writes through. Verbose
// logs go to stderr to avoid corrupting JSON.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// dbError reports a failure to open the database.
func dbError(formatter *OutputFormatter, err error) error {
	return formatter.Error(withCode(ErrCodeDatabase, ExitCommandError, "database error", err), nil)
}

// loadFailure gives schema load errors that carry no code of their own the
// generic schemaspec code.
func loadFailure(err error) error {
	var le *schemaspec.LoadError
	if errors.As(err, &le) {
		return err
	}
	return withCode(schemaspec.ErrCodeGeneric, ExitCommandError, "failed to load schema", err)
}

func errorStrings(errs []error) []string {
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}

// shortFingerprint abbreviates a fingerprint for text output.
func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
