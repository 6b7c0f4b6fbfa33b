// Package fingerprint computes path-independent content digests.
//
// Every digest renders as "sha256:<hex>". Missing content is the distinct
// token Absent rather than an error, so callers can tell "gone" from
// "unreadable".
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"strconv"
	"strings"

	"github.com/PatWie/sprout/pkg/errors"
	"github.com/PatWie/sprout/pkg/manifest"
)

// Fingerprint is a content digest.
type Fingerprint string

// Absent marks content that does not exist.
const Absent Fingerprint = "absent"

const prefix = "sha256:"

// String implements fmt.Stringer.
func (f Fingerprint) String() string { return string(f) }

// IsAbsent reports whether f is the Absent token or empty.
func (f Fingerprint) IsAbsent() bool { return f == Absent || f == "" }

// Hex returns the hex digest without the algorithm prefix.
func (f Fingerprint) Hex() string {
	return strings.TrimPrefix(string(f), prefix)
}

// Short returns the first eight hex characters, used in directory names.
func (f Fingerprint) Short() string {
	h := f.Hex()
	if len(h) < 8 {
		return h
	}
	return h[:8]
}

// Parse checks s and returns it as a Fingerprint.
func Parse(s string) (Fingerprint, error) {
	if s == string(Absent) {
		return Absent, nil
	}
	if !strings.HasPrefix(s, prefix) {
		return "", errors.Newf(errors.ErrInvalidInput, "fingerprint %q has no %s prefix", s, prefix)
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(s, prefix))
	if err != nil || len(raw) != sha256.Size {
		return "", errors.Newf(errors.ErrInvalidInput, "fingerprint %q is not a sha256 digest", s)
	}
	return Fingerprint(s), nil
}

// FromHex turns a bare hex sha256 into a Fingerprint.
func FromHex(h string) Fingerprint {
	return Fingerprint(prefix + strings.ToLower(h))
}

// Bytes digests raw bytes.
func Bytes(data []byte) Fingerprint {
	sum := sha256.Sum256(data)
	return FromHex(hex.EncodeToString(sum[:]))
}

func sum(h hash.Hash) Fingerprint {
	return FromHex(hex.EncodeToString(h.Sum(nil)))
}

// encoder writes length-prefixed fields so that no two field sequences
// serialize to the same bytes.
type encoder struct {
	h hash.Hash
}

func newEncoder(domain string) *encoder {
	e := &encoder{h: sha256.New()}
	e.str(domain)
	return e
}

func (e *encoder) str(s string) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(s)))
	e.h.Write(n[:])
	e.h.Write([]byte(s))
}

func (e *encoder) count(n int) {
	e.str(strconv.Itoa(n))
}

func (e *encoder) fetch(f *manifest.FetchSpec) {
	if f.IsNone() {
		e.str("none")
		return
	}
	e.str(string(f.Kind))
	e.str(f.URL)
	e.str(f.Ref)
	e.count(f.Depth)
	e.str(strconv.FormatBool(f.Recursive))
	e.str(f.SHA256)
	e.str(f.Crate)
	e.str(f.Module)
	e.str(f.Version)
	e.str(f.Path)
}

// Fetch digests a fetch spec. Its Short form names the module's source and
// cache directories.
func Fetch(f *manifest.FetchSpec) Fingerprint {
	e := newEncoder("sprout-fetch-1")
	e.fetch(f)
	return sum(e.h)
}

// Module digests everything that determines a module's build output: the
// fetch spec, every stage's env block and commands, and the exports. Names,
// dependencies and paths are not part of it.
func Module(m manifest.Module) Fingerprint {
	e := newEncoder("sprout-module-1")
	e.fetch(m.Fetch)

	for _, kind := range manifest.StageKinds {
		e.str(string(kind))
		stage := m.Stage(kind)
		if stage == nil {
			stage = &manifest.Stage{}
		}
		e.count(len(stage.Env))
		for _, v := range stage.Env {
			e.str(v.Name)
			e.str(v.Value)
		}
		e.count(len(stage.Commands))
		for _, c := range stage.Commands {
			e.str(c)
		}
	}

	e.count(len(m.Exports))
	for _, exp := range m.Exports {
		e.str(exp.Name)
		e.str(exp.Path)
	}
	return sum(e.h)
}

// Combine folds a module's own fingerprint with the tree fingerprints of
// its dependencies, in the order given.
func Combine(own Fingerprint, deps ...Fingerprint) Fingerprint {
	e := newEncoder("sprout-tree-1")
	e.str(string(own))
	e.count(len(deps))
	for _, d := range deps {
		e.str(string(d))
	}
	return sum(e.h)
}
