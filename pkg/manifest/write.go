package manifest

import (
	"bytes"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// Format renders m canonically. Comments and custom layout are not kept.
func Format(m *Manifest) []byte {
	f := hclwrite.NewEmptyFile()
	body := f.Body()
	for i, mod := range m.Modules() {
		if i > 0 {
			body.AppendNewline()
		}
		blk := appendModuleBlock(body, mod.Name)
		writeModule(blk.Body(), mod)
	}
	if envs := m.Environments(); len(envs) > 0 {
		if m.Len() > 0 {
			body.AppendNewline()
		}
		blk := body.AppendNewBlock(blockEnvironments, nil)
		for _, env := range envs {
			blk.Body().SetAttributeRaw(env.Name, nameListTokens(env.Modules))
		}
	}
	return hclwrite.Format(f.Bytes())
}

// appendModuleBlock adds an empty module block. Names that are valid
// identifiers are written bare, as in module ripgrep { ... }; hclwrite
// only builds quoted labels, so the block is parsed from source instead.
func appendModuleBlock(body *hclwrite.Body, name string) *hclwrite.Block {
	if toks := nameTokens(name); len(toks) == 1 && toks[0].Type == hclsyntax.TokenIdent {
		f, diags := hclwrite.ParseConfig([]byte(blockModule+" "+name+" {\n}\n"), "", hcl.InitialPos)
		if !diags.HasErrors() {
			if blocks := f.Body().Blocks(); len(blocks) == 1 {
				return body.AppendBlock(blocks[0])
			}
		}
	}
	return body.AppendNewBlock(blockModule, []string{name})
}

func writeModule(body *hclwrite.Body, mod Module) {
	if len(mod.DependsOn) > 0 {
		body.SetAttributeRaw(attrDependsOn, nameListTokens(mod.DependsOn))
	}
	if len(mod.Exports) > 0 {
		body.SetAttributeRaw(attrExports, exportTokens(mod.Exports))
	}
	if !mod.Fetch.IsNone() {
		blk := body.AppendNewBlock(blockFetch, nil)
		blk.Body().SetAttributeRaw(string(mod.Fetch.Kind), fetchTokens(mod.Fetch))
	}
	for _, kind := range StageKinds {
		if stage := mod.Stage(kind); stage != nil {
			blk := body.AppendNewBlock(string(kind), nil)
			writeStage(blk.Body(), stage)
		}
	}
}

func writeStage(body *hclwrite.Body, stage *Stage) {
	if len(stage.Env) > 0 {
		env := body.AppendNewBlock(blockEnv, nil)
		for _, v := range stage.Env {
			env.Body().SetAttributeRaw(v.Name, stringTokens(v.Value))
		}
	}
	body.SetAttributeRaw(attrCommands, commandTokens(stage.Commands))
}

// stringTokens quotes s and keeps ${PLACEHOLDER} references unescaped.
func stringTokens(s string) hclwrite.Tokens {
	toks := hclwrite.TokensForValue(cty.StringVal(s))
	for _, tok := range toks {
		if tok.Type != hclsyntax.TokenQuotedLit {
			continue
		}
		for _, name := range Placeholders {
			tok.Bytes = bytes.ReplaceAll(tok.Bytes, []byte("$${"+name+"}"), []byte("${"+name+"}"))
		}
	}
	return toks
}

func nameTokens(name string) hclwrite.Tokens {
	switch name {
	case "true", "false", "null":
		return stringTokens(name)
	}
	if hclsyntax.ValidIdentifier(name) {
		return hclwrite.TokensForIdentifier(name)
	}
	return stringTokens(name)
}

func nameListTokens(names []string) hclwrite.Tokens {
	elems := make([]hclwrite.Tokens, 0, len(names))
	for _, n := range names {
		elems = append(elems, nameTokens(n))
	}
	return hclwrite.TokensForTuple(elems)
}

func exportTokens(exports []Export) hclwrite.Tokens {
	attrs := make([]hclwrite.ObjectAttrTokens, 0, len(exports))
	for _, e := range exports {
		attrs = append(attrs, hclwrite.ObjectAttrTokens{
			Name:  nameTokens(e.Name),
			Value: stringTokens(e.Path),
		})
	}
	return hclwrite.TokensForObject(attrs)
}

func fetchTokens(f *FetchSpec) hclwrite.Tokens {
	var attrs []hclwrite.ObjectAttrTokens
	add := func(name string, value hclwrite.Tokens) {
		attrs = append(attrs, hclwrite.ObjectAttrTokens{Name: hclwrite.TokensForIdentifier(name), Value: value})
	}
	for _, field := range fetchFields[f.Kind] {
		switch field {
		case "url":
			add(field, stringTokens(f.URL))
		case "ref":
			if f.Ref != "" {
				add(field, stringTokens(f.Ref))
			}
		case "depth":
			if f.Depth != 0 {
				add(field, hclwrite.TokensForValue(cty.NumberIntVal(int64(f.Depth))))
			}
		case "recursive":
			if f.Recursive {
				add(field, hclwrite.TokensForValue(cty.True))
			}
		case "sha256":
			if f.SHA256 != "" {
				add(field, stringTokens(f.SHA256))
			}
		case "crate":
			add(field, stringTokens(f.Crate))
		case "module":
			add(field, stringTokens(f.Module))
		case "version":
			add(field, stringTokens(f.Version))
		case "path":
			add(field, stringTokens(f.Path))
		}
	}
	return hclwrite.TokensForObject(attrs)
}

// commandTokens writes one command per line for lists longer than one.
func commandTokens(commands []string) hclwrite.Tokens {
	if len(commands) <= 1 {
		elems := make([]hclwrite.Tokens, 0, len(commands))
		for _, c := range commands {
			elems = append(elems, stringTokens(c))
		}
		return hclwrite.TokensForTuple(elems)
	}

	toks := hclwrite.Tokens{
		{Type: hclsyntax.TokenOBrack, Bytes: []byte("[")},
		{Type: hclsyntax.TokenNewline, Bytes: []byte("\n")},
	}
	for _, c := range commands {
		toks = append(toks, stringTokens(c)...)
		toks = append(toks,
			&hclwrite.Token{Type: hclsyntax.TokenComma, Bytes: []byte(",")},
			&hclwrite.Token{Type: hclsyntax.TokenNewline, Bytes: []byte("\n")},
		)
	}
	return append(toks, &hclwrite.Token{Type: hclsyntax.TokenCBrack, Bytes: []byte("]")})
}
