package manifest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/PatWie/sprout/pkg/errors"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Placeholders may be written as ${NAME} inside manifest strings. They
// evaluate to themselves and are substituted when a stage runs.
var Placeholders = []string{"SOURCE_PATH", "DIST_PATH", "SPROUT_DIST"}

const (
	blockModule       = "module"
	blockEnvironments = "environments"
	blockFetch        = "fetch"
	blockEnv          = "env"
	attrDependsOn     = "depends_on"
	attrExports       = "exports"
	attrCommands      = "commands"
)

// fetch fields accepted per kind, in canonical order
var fetchFields = map[FetchKind][]string{
	FetchGit:     {"url", "ref", "depth", "recursive"},
	FetchHTTP:    {"url", "sha256"},
	FetchArchive: {"url", "sha256"},
	FetchCargo:   {"crate", "version"},
	FetchGo:      {"module", "version"},
	FetchLocal:   {"path"},
}

func evalContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(Placeholders))
	for _, name := range Placeholders {
		vars[name] = cty.StringVal("${" + name + "}")
	}
	return &hcl.EvalContext{Variables: vars}
}

// Parse decodes HCL manifest source and validates the result.
func Parse(src []byte, filename string) (*Manifest, error) {
	modules, envs, err := decode(src, filename)
	if err != nil {
		return nil, err
	}
	return New(modules, envs)
}

func syntaxError(diags hcl.Diagnostics) error {
	return errors.Wrap(diags, errors.ErrValidation, "invalid manifest").
		WithDetail(errors.DetailKind, errors.KindSyntax)
}

func diag(subject hcl.Range, summary, detail string) *hcl.Diagnostic {
	return &hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  summary,
		Detail:   detail,
		Subject:  subject.Ptr(),
	}
}

type decoder struct {
	ctx   *hcl.EvalContext
	diags hcl.Diagnostics
}

func (d *decoder) fail(subject hcl.Range, summary, detail string) {
	d.diags = append(d.diags, diag(subject, summary, detail))
}

func decode(src []byte, filename string) ([]Module, []Environment, error) {
	file, diags := hclsyntax.ParseConfig(src, filename, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, nil, syntaxError(diags)
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, nil, errors.New(errors.ErrInternal, "unexpected HCL body type")
	}

	d := &decoder{ctx: evalContext()}
	for _, attr := range sortedAttributes(body.Attributes) {
		d.fail(attr.SrcRange, "Unexpected attribute",
			fmt.Sprintf("%q is not allowed at the top level; only module and environments blocks are.", attr.Name))
	}

	var (
		modules []Module
		envs    []Environment
		envSeen bool
	)
	for _, block := range body.Blocks {
		switch block.Type {
		case blockModule:
			if mod, ok := d.module(block); ok {
				modules = append(modules, mod)
			}
		case blockEnvironments:
			if envSeen {
				d.fail(block.TypeRange, "Duplicate environments block", "Only one environments block is allowed.")
				continue
			}
			envSeen = true
			envs = d.environments(block)
		default:
			d.fail(block.TypeRange, "Unexpected block", fmt.Sprintf("Blocks of type %q are not supported.", block.Type))
		}
	}

	if d.diags.HasErrors() {
		return nil, nil, syntaxError(d.diags)
	}
	return modules, envs, nil
}

func (d *decoder) module(block *hclsyntax.Block) (Module, bool) {
	if len(block.Labels) != 1 {
		d.fail(block.TypeRange, "Invalid module block", "A module block needs exactly one label: its name.")
		return Module{}, false
	}
	mod := Module{Name: block.Labels[0]}

	for _, attr := range sortedAttributes(block.Body.Attributes) {
		switch attr.Name {
		case attrDependsOn:
			mod.DependsOn = d.nameList(attr.Expr)
		case attrExports:
			mod.Exports = d.exports(attr.Expr)
		default:
			d.fail(attr.SrcRange, "Unsupported argument",
				fmt.Sprintf("Module %q has no argument %q.", mod.Name, attr.Name))
		}
	}

	seen := map[string]bool{}
	for _, inner := range block.Body.Blocks {
		if seen[inner.Type] {
			d.fail(inner.TypeRange, "Duplicate block",
				fmt.Sprintf("Module %q declares %q more than once.", mod.Name, inner.Type))
			continue
		}
		seen[inner.Type] = true

		switch inner.Type {
		case blockFetch:
			mod.Fetch = d.fetch(inner)
		case string(StageBuild), string(StageInstall), string(StageUpdate):
			mod.SetStage(StageKind(inner.Type), d.stage(inner))
		default:
			d.fail(inner.TypeRange, "Unsupported block",
				fmt.Sprintf("Module %q has no block %q.", mod.Name, inner.Type))
		}
	}
	return mod, true
}

// nameList reads [a, "b", c]; bare identifiers are taken as names.
func (d *decoder) nameList(expr hclsyntax.Expression) []string {
	tuple, ok := expr.(*hclsyntax.TupleConsExpr)
	if !ok {
		d.fail(expr.Range(), "Invalid list", "Expected a list of module names, like [a, b].")
		return nil
	}
	names := make([]string, 0, len(tuple.Exprs))
	for _, item := range tuple.Exprs {
		if name, ok := d.keyword(item); ok {
			names = append(names, name)
		}
	}
	return names
}

// keyword accepts a bare identifier or a string.
func (d *decoder) keyword(expr hclsyntax.Expression) (string, bool) {
	if kw := hcl.ExprAsKeyword(expr); kw != "" {
		return kw, true
	}
	return d.str(expr)
}

func (d *decoder) str(expr hclsyntax.Expression) (string, bool) {
	val, diags := expr.Value(d.ctx)
	if diags.HasErrors() {
		d.diags = append(d.diags, diags...)
		return "", false
	}
	return d.asString(val, expr.Range())
}

func (d *decoder) asString(val cty.Value, rng hcl.Range) (string, bool) {
	if val.IsNull() || !val.IsKnown() {
		d.fail(rng, "Invalid value", "A string is required.")
		return "", false
	}
	converted, err := convert.Convert(val, cty.String)
	if err != nil {
		d.fail(rng, "Invalid value", fmt.Sprintf("A string is required, got %s.", val.Type().FriendlyName()))
		return "", false
	}
	return converted.AsString(), true
}

func (d *decoder) exports(expr hclsyntax.Expression) []Export {
	obj, ok := expr.(*hclsyntax.ObjectConsExpr)
	if !ok {
		d.fail(expr.Range(), "Invalid exports", `Expected an object, like { PATH = "bin" }.`)
		return nil
	}
	out := make([]Export, 0, len(obj.Items))
	for _, item := range obj.Items {
		name, ok := d.keyword(item.KeyExpr)
		if !ok {
			continue
		}
		path, ok := d.str(item.ValueExpr)
		if !ok {
			continue
		}
		out = append(out, Export{Name: name, Path: path})
	}
	return out
}

func (d *decoder) fetch(block *hclsyntax.Block) *FetchSpec {
	attrs := sortedAttributes(block.Body.Attributes)
	if len(attrs) != 1 || len(block.Body.Blocks) != 0 {
		d.fail(block.TypeRange, "Invalid fetch block", "A fetch block holds exactly one source, like git = { url = \"...\" }.")
		return nil
	}
	attr := attrs[0]
	kind := FetchKind(attr.Name)
	allowed, ok := fetchFields[kind]
	if !ok {
		d.fail(attr.SrcRange, "Unknown fetch kind", fmt.Sprintf("%q is not one of git, http, archive, cargo, go, local.", attr.Name))
		return nil
	}

	val, diags := attr.Expr.Value(d.ctx)
	if diags.HasErrors() {
		d.diags = append(d.diags, diags...)
		return nil
	}
	if val.IsNull() || !(val.Type().IsObjectType() || val.Type().IsMapType()) {
		d.fail(attr.Expr.Range(), "Invalid fetch source", "The source must be an object.")
		return nil
	}

	spec := &FetchSpec{Kind: kind}
	fields := val.AsValueMap()
	for _, key := range sortedKeys(fields) {
		if !contains(allowed, key) {
			d.fail(attr.Expr.Range(), "Unsupported field",
				fmt.Sprintf("%s sources accept %s; %q is not one of them.", kind, strings.Join(allowed, ", "), key))
			continue
		}
		v := fields[key]
		if v.IsNull() {
			continue
		}
		if err := assignFetchField(spec, key, v); err != nil {
			d.fail(attr.Expr.Range(), "Invalid field", fmt.Sprintf("%s.%s: %v", kind, key, err))
		}
	}
	spec.SHA256 = strings.ToLower(spec.SHA256)
	return spec
}

func assignFetchField(spec *FetchSpec, key string, v cty.Value) error {
	var target interface{}
	var want cty.Type
	switch key {
	case "url":
		target, want = &spec.URL, cty.String
	case "ref":
		target, want = &spec.Ref, cty.String
	case "sha256":
		target, want = &spec.SHA256, cty.String
	case "crate":
		target, want = &spec.Crate, cty.String
	case "module":
		target, want = &spec.Module, cty.String
	case "version":
		target, want = &spec.Version, cty.String
	case "path":
		target, want = &spec.Path, cty.String
	case "depth":
		target, want = &spec.Depth, cty.Number
	case "recursive":
		target, want = &spec.Recursive, cty.Bool
	default:
		return fmt.Errorf("unknown field")
	}
	converted, err := convert.Convert(v, want)
	if err != nil {
		return err
	}
	return gocty.FromCtyValue(converted, target)
}

func (d *decoder) stage(block *hclsyntax.Block) *Stage {
	stage := &Stage{}
	for _, attr := range sortedAttributes(block.Body.Attributes) {
		switch attr.Name {
		case attrCommands:
			stage.Commands = d.commands(attr.Expr)
		case blockEnv:
			stage.Env = d.envObject(attr.Expr)
		default:
			d.fail(attr.SrcRange, "Unsupported argument",
				fmt.Sprintf("A %s block has no argument %q.", block.Type, attr.Name))
		}
	}
	for _, inner := range block.Body.Blocks {
		if inner.Type != blockEnv || len(inner.Labels) != 0 {
			d.fail(inner.TypeRange, "Unsupported block", fmt.Sprintf("A %s block only holds an env block.", block.Type))
			continue
		}
		if stage.Env != nil {
			d.fail(inner.TypeRange, "Duplicate env", "env is declared more than once.")
			continue
		}
		stage.Env = d.envBlock(inner)
	}
	return stage
}

// commands accepts a list of strings or a heredoc with one command per line.
func (d *decoder) commands(expr hclsyntax.Expression) []string {
	if tuple, ok := expr.(*hclsyntax.TupleConsExpr); ok {
		out := make([]string, 0, len(tuple.Exprs))
		for _, item := range tuple.Exprs {
			if s, ok := d.str(item); ok {
				out = append(out, s)
			}
		}
		return out
	}

	text, ok := d.str(expr)
	if !ok {
		return nil
	}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

func (d *decoder) envBlock(block *hclsyntax.Block) []EnvVar {
	out := []EnvVar{}
	for _, attr := range sortedAttributes(block.Body.Attributes) {
		if v, ok := d.str(attr.Expr); ok {
			out = append(out, EnvVar{Name: attr.Name, Value: v})
		}
	}
	return out
}

func (d *decoder) envObject(expr hclsyntax.Expression) []EnvVar {
	out := []EnvVar{}
	for _, exp := range d.exports(expr) {
		out = append(out, EnvVar{Name: exp.Name, Value: exp.Path})
	}
	return out
}

func (d *decoder) environments(block *hclsyntax.Block) []Environment {
	if len(block.Labels) != 0 || len(block.Body.Blocks) != 0 {
		d.fail(block.TypeRange, "Invalid environments block", "environments holds name = [modules] entries only.")
		return nil
	}
	var out []Environment
	for _, attr := range sortedAttributes(block.Body.Attributes) {
		out = append(out, Environment{Name: attr.Name, Modules: d.nameList(attr.Expr)})
	}
	return out
}

// sortedAttributes returns attributes in source order.
func sortedAttributes(attrs hclsyntax.Attributes) []*hclsyntax.Attribute {
	out := make([]*hclsyntax.Attribute, 0, len(attrs))
	for _, attr := range attrs {
		out = append(out, attr)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SrcRange.Start.Byte < out[j].SrcRange.Start.Byte
	})
	return out
}

func sortedKeys(m map[string]cty.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
