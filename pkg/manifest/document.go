package manifest

import (
	stderrors "errors"
	"io/fs"

	"github.com/PatWie/sprout/pkg/errors"
	"github.com/PatWie/sprout/pkg/filesystem"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclwrite"
)

// Document is a parsed manifest file together with the snapshot it
// currently describes.
type Document struct {
	file     *hclwrite.File
	manifest *Manifest
}

// ParseDocument parses src into a Document.
func ParseDocument(src []byte, filename string) (*Document, error) {
	m, err := Parse(src, filename)
	if err != nil {
		return nil, err
	}
	file, diags := hclwrite.ParseConfig(src, filename, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, syntaxError(diags)
	}
	return &Document{file: file, manifest: m}, nil
}

// LoadDocument reads the manifest at path. A missing file is an empty
// manifest.
func LoadDocument(fsys filesystem.FS, path string) (*Document, error) {
	src, err := fsys.ReadFile(path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return &Document{file: hclwrite.NewEmptyFile(), manifest: Empty()}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFilesystem, "failed to read manifest %s", path).
			WithDetail(errors.DetailPath, path)
	}
	return ParseDocument(src, path)
}

// Manifest returns the current snapshot.
func (d *Document) Manifest() *Manifest {
	return d.manifest
}

// Bytes renders the document.
func (d *Document) Bytes() []byte {
	return hclwrite.Format(d.file.Bytes())
}

// Save writes the document atomically.
func (d *Document) Save(fsys filesystem.FS, path string) error {
	if err := filesystem.WriteFileAtomic(fsys, path, d.Bytes(), 0o644); err != nil {
		return errors.Wrapf(err, errors.ErrFilesystem, "failed to write manifest %s", path).
			WithDetail(errors.DetailPath, path)
	}
	return nil
}

// Commit rewrites the parts of the document that differ between the
// current snapshot and next. Blocks of unchanged modules are left alone.
// A comment directly above a removed module block goes with it; comments
// separated from the block by a blank line stay.
func (d *Document) Commit(next *Manifest) {
	prev := d.manifest
	body := d.file.Body()

	for _, blk := range body.Blocks() {
		if blk.Type() != blockModule || len(blk.Labels()) != 1 {
			continue
		}
		if !next.Has(blk.Labels()[0]) {
			body.RemoveBlock(blk)
		}
	}

	for _, mod := range next.Modules() {
		blk := findBlock(body, blockModule, mod.Name)
		if blk == nil {
			body.AppendNewline()
			blk = appendModuleBlock(body, mod.Name)
			writeModule(blk.Body(), mod)
			continue
		}
		old, _ := prev.Module(mod.Name)
		if !old.Equal(mod) {
			updateModule(blk.Body(), old, mod)
		}
	}

	updateEnvironments(body, prev.Environments(), next.Environments())
	d.manifest = next
}

func findBlock(body *hclwrite.Body, typ, label string) *hclwrite.Block {
	for _, blk := range body.Blocks() {
		if blk.Type() != typ {
			continue
		}
		labels := blk.Labels()
		if label == "" && len(labels) == 0 {
			return blk
		}
		if len(labels) == 1 && labels[0] == label {
			return blk
		}
	}
	return nil
}

func updateModule(body *hclwrite.Body, old, mod Module) {
	if !equalStrings(old.DependsOn, mod.DependsOn) {
		if len(mod.DependsOn) == 0 {
			body.RemoveAttribute(attrDependsOn)
		} else {
			body.SetAttributeRaw(attrDependsOn, nameListTokens(mod.DependsOn))
		}
	}

	if !equalExports(old.Exports, mod.Exports) {
		if len(mod.Exports) == 0 {
			body.RemoveAttribute(attrExports)
		} else {
			body.SetAttributeRaw(attrExports, exportTokens(mod.Exports))
		}
	}

	if !equalFetch(old.Fetch, mod.Fetch) {
		blk := findBlock(body, blockFetch, "")
		switch {
		case mod.Fetch.IsNone():
			if blk != nil {
				body.RemoveBlock(blk)
			}
		case blk == nil:
			blk = body.AppendNewBlock(blockFetch, nil)
			blk.Body().SetAttributeRaw(string(mod.Fetch.Kind), fetchTokens(mod.Fetch))
		default:
			if !old.Fetch.IsNone() && old.Fetch.Kind != mod.Fetch.Kind {
				blk.Body().RemoveAttribute(string(old.Fetch.Kind))
			}
			blk.Body().SetAttributeRaw(string(mod.Fetch.Kind), fetchTokens(mod.Fetch))
		}
	}

	for _, kind := range StageKinds {
		before, after := old.Stage(kind), mod.Stage(kind)
		if equalStage(before, after) {
			continue
		}
		blk := findBlock(body, string(kind), "")
		switch {
		case after == nil:
			if blk != nil {
				body.RemoveBlock(blk)
			}
		case blk == nil:
			blk = body.AppendNewBlock(string(kind), nil)
			writeStage(blk.Body(), after)
		default:
			updateStage(blk.Body(), before, after)
		}
	}
}

func updateStage(body *hclwrite.Body, before, after *Stage) {
	if before == nil {
		before = &Stage{}
	}

	beforeNames := envNames(before.Env)
	afterNames := envNames(after.Env)
	envBlk := findBlock(body, blockEnv, "")
	switch {
	case len(after.Env) == 0:
		if envBlk != nil {
			body.RemoveBlock(envBlk)
		}
		body.RemoveAttribute(blockEnv)
	case envBlk != nil && keepsOrder(beforeNames, afterNames):
		for _, name := range beforeNames {
			if !contains(afterNames, name) {
				envBlk.Body().RemoveAttribute(name)
			}
		}
		for _, v := range after.Env {
			if contains(beforeNames, v.Name) && envValue(before.Env, v.Name) == v.Value {
				continue
			}
			envBlk.Body().SetAttributeRaw(v.Name, stringTokens(v.Value))
		}
	default:
		if envBlk != nil {
			body.RemoveBlock(envBlk)
		}
		body.RemoveAttribute(blockEnv)
		envBlk = body.AppendNewBlock(blockEnv, nil)
		for _, v := range after.Env {
			envBlk.Body().SetAttributeRaw(v.Name, stringTokens(v.Value))
		}
	}

	if !equalStrings(before.Commands, after.Commands) || body.GetAttribute(attrCommands) == nil {
		body.SetAttributeRaw(attrCommands, commandTokens(after.Commands))
	}
}

func updateEnvironments(body *hclwrite.Body, before, after []Environment) {
	if equalEnvironments(before, after) {
		return
	}
	blk := findBlock(body, blockEnvironments, "")
	if len(after) == 0 {
		if blk != nil {
			body.RemoveBlock(blk)
		}
		return
	}

	beforeNames := environmentNames(before)
	afterNames := environmentNames(after)
	if blk == nil || !keepsOrder(beforeNames, afterNames) {
		if blk != nil {
			body.RemoveBlock(blk)
		}
		body.AppendNewline()
		blk = body.AppendNewBlock(blockEnvironments, nil)
		for _, env := range after {
			blk.Body().SetAttributeRaw(env.Name, nameListTokens(env.Modules))
		}
		return
	}

	for _, name := range beforeNames {
		if !contains(afterNames, name) {
			blk.Body().RemoveAttribute(name)
		}
	}
	for _, env := range after {
		if prev, ok := findEnvironment(before, env.Name); ok && equalStrings(prev.Modules, env.Modules) {
			continue
		}
		blk.Body().SetAttributeRaw(env.Name, nameListTokens(env.Modules))
	}
}

// keepsOrder reports whether after is before with some names removed and
// new names appended, so in-place edits reproduce after's order.
func keepsOrder(before, after []string) bool {
	i := 0
	for _, name := range before {
		if !contains(after, name) {
			continue
		}
		if i >= len(after) || after[i] != name {
			return false
		}
		i++
	}
	for _, name := range after[i:] {
		if contains(before, name) {
			return false
		}
	}
	return true
}

func envNames(env []EnvVar) []string {
	out := make([]string, 0, len(env))
	for _, v := range env {
		out = append(out, v.Name)
	}
	return out
}

func envValue(env []EnvVar, name string) string {
	for _, v := range env {
		if v.Name == name {
			return v.Value
		}
	}
	return ""
}

func environmentNames(envs []Environment) []string {
	out := make([]string, 0, len(envs))
	for _, e := range envs {
		out = append(out, e.Name)
	}
	return out
}

func findEnvironment(envs []Environment, name string) (Environment, bool) {
	for _, e := range envs {
		if e.Name == name {
			return e, true
		}
	}
	return Environment{}, false
}

func equalEnvironments(a, b []Environment) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || !equalStrings(a[i].Modules, b[i].Modules) {
			return false
		}
	}
	return true
}
