package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/farmdesk/farmdesk/internal/identity"
	"github.com/farmdesk/farmdesk/internal/permission"
)

// PermCLI offers offline helpers around the permission matrix.
type PermCLI struct {
	Stdout io.Writer
	Stderr io.Writer
}

// NewPermCLI writes to the process streams.
func NewPermCLI() *PermCLI {
	return &PermCLI{Stdout: os.Stdout, Stderr: os.Stderr}
}

// Run dispatches a perm subcommand and returns the process exit code.
func (c *PermCLI) Run(args []string) int {
	if len(args) == 0 {
		c.usage()
		return 2
	}
	switch args[0] {
	case "print-default":
		return c.PrintDefault(args[1:])
	case "check":
		return c.Check(args[1:])
	case "validate":
		return c.Validate(args[1:])
	case "token":
		return c.Token(args[1:])
	default:
		_, _ = fmt.Fprintf(c.Stderr, "perm: unknown command %q\n", args[0])
		c.usage()
		return 2
	}
}

func (c *PermCLI) usage() {
	_, _ = fmt.Fprintln(c.Stderr, "usage: farmdesk perm <print-default|check|validate|token> [flags]")
}

func (c *PermCLI) flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("perm "+name, pflag.ContinueOnError)
	fs.SetOutput(c.Stderr)
	return fs
}

// PrintDefault renders the default matrix as a table or JSON document.
func (c *PermCLI) PrintDefault(args []string) int {
	fs := c.flags("print-default")
	jsonOutput := fs.Bool("json", false, "print the matrix document as JSON")
	modules := fs.String("modules", "", "comma separated module subset")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	mods := permission.Modules()
	if strings.TrimSpace(*modules) != "" {
		mods = mods[:0:0]
		for _, raw := range strings.Split(*modules, ",") {
			mod, ok := permission.ParseModule(raw)
			if !ok {
				_, _ = fmt.Fprintf(c.Stderr, "perm print-default: unknown module %q\n", strings.TrimSpace(raw))
				return 1
			}
			mods = append(mods, mod)
		}
	}
	m := permission.BuildDefaultMatrix(mods)
	if *jsonOutput {
		enc := json.NewEncoder(c.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(m.Document()); err != nil {
			_, _ = fmt.Fprintf(c.Stderr, "perm print-default: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	renderMatrix(c.Stdout, m)
	return 0
}

// Check answers a single query against the default matrix, or against a matrix
// document read from -file.
func (c *PermCLI) Check(args []string) int {
	fs := c.flags("check")
	role := fs.String("role", "", "role name")
	module := fs.String("module", "", "module key")
	action := fs.String("action", "", "view, create, edit or delete")
	file := fs.String("file", "", "matrix document to check against")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	m := permission.DefaultMatrix()
	if *file != "" {
		loaded, err := readMatrix(*file)
		if err != nil {
			_, _ = fmt.Fprintf(c.Stderr, "perm check: %v\n", err)
			return 1
		}
		m = loaded
	}
	r, _ := permission.ParseRole(*role)
	mod, _ := permission.ParseModule(*module)
	a, _ := permission.ParseAction(*action)
	allowed, err := permission.Check(m, r, mod, a)
	if errors.Is(err, permission.ErrUnknownKey) {
		_, _ = fmt.Fprintf(c.Stderr, "perm check: %v (denied)\n", err)
	}
	if allowed {
		_, _ = fmt.Fprintln(c.Stdout, "allowed")
		return 0
	}
	_, _ = fmt.Fprintln(c.Stdout, "denied")
	return 10
}

// Validate reports whether a matrix document covers every role and module.
func (c *PermCLI) Validate(args []string) int {
	fs := c.flags("validate")
	file := fs.String("file", "", "matrix document to validate")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *file == "" {
		_, _ = fmt.Fprintln(c.Stderr, "perm validate: --file is required")
		return 1
	}
	m, err := readMatrix(*file)
	if err != nil {
		_, _ = fmt.Fprintf(c.Stderr, "perm validate: %v\n", err)
		return 1
	}
	if err := permission.Validate(m, permission.Modules()); err != nil {
		var verr *permission.ValidationError
		if errors.As(err, &verr) {
			for _, p := range verr.Problems {
				_, _ = fmt.Fprintf(c.Stdout, " - %s\n", p)
			}
		}
		return 10
	}
	_, _ = fmt.Fprintf(c.Stdout, "ok %s\n", permission.Fingerprint(m))
	return 0
}

// Token issues a signed development token for a user and role.
func (c *PermCLI) Token(args []string) int {
	fs := c.flags("token")
	user := fs.String("user", "", "user id")
	email := fs.String("email", "", "user email")
	role := fs.String("role", "", "role name")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	secret := fs.String("secret", os.Getenv("JWT_SECRET"), "signing secret, defaults to JWT_SECRET")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *secret == "" {
		_, _ = fmt.Fprintln(c.Stderr, "perm token: --secret or JWT_SECRET is required")
		return 1
	}
	r, ok := permission.ParseRole(*role)
	if !ok {
		_, _ = fmt.Fprintf(c.Stderr, "perm token: unknown role %q\n", *role)
		return 1
	}
	raw, err := identity.NewTokens(*secret, *ttl).Issue(identity.Principal{UserID: *user, Email: *email, Role: string(r)})
	if err != nil {
		_, _ = fmt.Fprintf(c.Stderr, "perm token: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(c.Stdout, raw)
	return 0
}

func readMatrix(path string) (*permission.Matrix, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc permission.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return permission.FromDocument(doc), nil
}

func renderMatrix(out io.Writer, m *permission.Matrix) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	header := []string{"ROLE"}
	for _, mod := range m.Modules() {
		header = append(header, strings.ToUpper(mod.Label()))
	}
	_, _ = fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, role := range permission.Roles() {
		row := []string{role.DisplayName()}
		for _, mod := range m.Modules() {
			c, _ := m.Lookup(role, mod)
			row = append(row, c.String())
		}
		_, _ = fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	_ = tw.Flush()
}
