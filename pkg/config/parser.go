package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/scanner"
	"unicode"
)

// ParseFile opens and parses the config file at path.
func ParseFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f, path)
}

// Parse reads a config document from r. filename is used only to annotate
// error messages with a position.
func Parse(r io.Reader, filename string) (*Config, error) {
	p := newParser(r, filename)
	cfg := &Config{}
	sawOptions := false

	for p.tok != scanner.EOF {
		if p.tok != scanner.Ident {
			return nil, p.errorf("expected %q or %q, got %q", "options", "dataset", p.text())
		}
		switch p.text() {
		case "options":
			if sawOptions {
				return nil, p.errorf("duplicate options block")
			}
			sawOptions = true
			p.next()
			opts, err := p.parseOptions()
			if err != nil {
				return nil, err
			}
			cfg.Options = opts
		case "dataset":
			p.next()
			ds, err := p.parseDataset()
			if err != nil {
				return nil, err
			}
			cfg.Datasets = append(cfg.Datasets, ds)
		default:
			return nil, p.errorf("unexpected top-level block %q", p.text())
		}
	}

	if !sawOptions {
		return nil, errors.New("config: missing options block")
	}
	if cfg.Options.OutputDir == "" {
		return nil, errors.New("config: options.output_dir is required")
	}
	if len(cfg.Datasets) == 0 {
		return nil, errors.New("config: at least one dataset block is required")
	}
	return cfg, nil
}

type parser struct {
	sc  *scanner.Scanner
	tok rune
}

func newParser(r io.Reader, filename string) *parser {
	var sc scanner.Scanner
	sc.Init(r)
	sc.Filename = filename
	sc.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanStrings | scanner.ScanComments | scanner.SkipComments
	// file-pattern needs '-' inside an identifier; '_' is already included
	// by the default IsIdentRune, so only '-' needs adding.
	sc.IsIdentRune = func(ch rune, i int) bool {
		return ch == '_' || ch == '-' || unicode.IsLetter(ch) || (i > 0 && unicode.IsDigit(ch))
	}
	p := &parser{sc: &sc}
	p.next()
	return p
}

func (p *parser) next() {
	p.tok = p.sc.Scan()
}

func (p *parser) text() string {
	return p.sc.TokenText()
}

func (p *parser) errorf(format string, args ...any) error {
	pos := p.sc.Position
	return fmt.Errorf("%s:%d:%d: "+format, append([]any{p.sc.Filename, pos.Line, pos.Column}, args...)...)
}

func (p *parser) expectRune(r rune) error {
	if p.tok != r {
		return p.errorf("expected %q, got %q", string(r), p.text())
	}
	p.next()
	return nil
}

func (p *parser) parseString() (string, error) {
	if p.tok != scanner.String {
		return "", p.errorf("expected a quoted string, got %q", p.text())
	}
	s, err := strconv.Unquote(p.text())
	if err != nil {
		return "", p.errorf("invalid string literal %q: %v", p.text(), err)
	}
	p.next()
	return s, nil
}

func (p *parser) parseUint() (uint64, error) {
	if p.tok != scanner.Int {
		return 0, p.errorf("expected an integer, got %q", p.text())
	}
	n, err := strconv.ParseUint(p.text(), 10, 64)
	if err != nil {
		return 0, p.errorf("invalid integer %q: %v", p.text(), err)
	}
	p.next()
	return n, nil
}

func (p *parser) parseIdent() (string, error) {
	if p.tok != scanner.Ident {
		return "", p.errorf("expected a bare word, got %q", p.text())
	}
	s := p.text()
	p.next()
	return s, nil
}

func (p *parser) parseBool() (bool, error) {
	s, err := p.parseIdent()
	if err != nil {
		return false, err
	}
	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, p.errorf("expected true or false, got %q", s)
	}
}

func (p *parser) parseOptions() (Options, error) {
	var o Options
	mergeModeSet := false

	if err := p.expectRune('{'); err != nil {
		return o, err
	}
	for p.tok != '}' {
		if p.tok == scanner.EOF {
			return o, p.errorf("unterminated options block")
		}
		key, err := p.parseIdent()
		if err != nil {
			return o, err
		}
		switch key {
		case "blocksize":
			n, err := p.parseUint()
			if err != nil {
				return o, err
			}
			o.BlockSize = n
		case "output_dir":
			s, err := p.parseString()
			if err != nil {
				return o, err
			}
			o.OutputDir = s
		case "mergemode":
			s, err := p.parseIdent()
			if err != nil {
				return o, err
			}
			switch s {
			case "master":
				o.MergeMode = MergeMaster
			case "workers":
				o.MergeMode = MergeWorkers
			case "nomerge":
				o.MergeMode = MergeNone
			default:
				return o, p.errorf("unknown mergemode %q", s)
			}
			mergeModeSet = true
		case "keep_unmerged":
			b, err := p.parseBool()
			if err != nil {
				return o, err
			}
			o.KeepUnmerged = b
		default:
			return o, p.errorf("unknown option key %q", key)
		}
	}
	p.next()

	if !mergeModeSet {
		return o, p.errorf("options.mergemode is required")
	}
	return o, nil
}

func (p *parser) parseDataset() (Dataset, error) {
	ds := Dataset{Tags: map[string]string{}}

	if err := p.expectRune('{'); err != nil {
		return ds, err
	}

	var pattern string
	var explicitFiles []string

	for p.tok != '}' {
		if p.tok == scanner.EOF {
			return ds, p.errorf("unterminated dataset block")
		}
		key, err := p.parseIdent()
		if err != nil {
			return ds, err
		}
		switch key {
		case "name":
			if ds.Name, err = p.parseString(); err != nil {
				return ds, err
			}
		case "treename":
			if ds.TreeName, err = p.parseString(); err != nil {
				return ds, err
			}
		case "file-pattern":
			if pattern, err = p.parseString(); err != nil {
				return ds, err
			}
		case "file":
			s, err := p.parseString()
			if err != nil {
				return ds, err
			}
			explicitFiles = append(explicitFiles, s)
		case "tags":
			tags, err := p.parseTags()
			if err != nil {
				return ds, err
			}
			ds.Tags = tags
		default:
			return ds, p.errorf("unknown dataset key %q", key)
		}
	}
	p.next()

	if ds.Name == "" {
		return ds, p.errorf("dataset.name is required")
	}
	switch {
	case pattern != "" && len(explicitFiles) > 0:
		return ds, p.errorf("dataset %q: file-pattern and file are mutually exclusive", ds.Name)
	case pattern != "":
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return ds, p.errorf("dataset %q: invalid file-pattern %q: %v", ds.Name, pattern, err)
		}
		if len(matches) == 0 {
			return ds, p.errorf("dataset %q: file-pattern %q matched no files", ds.Name, pattern)
		}
		ds.Files = matches
	case len(explicitFiles) > 0:
		ds.Files = explicitFiles
	default:
		return ds, p.errorf("dataset %q: requires file-pattern or at least one file", ds.Name)
	}
	return ds, nil
}

func (p *parser) parseTags() (map[string]string, error) {
	tags := map[string]string{}
	if err := p.expectRune('{'); err != nil {
		return nil, err
	}
	for p.tok != '}' {
		if p.tok == scanner.EOF {
			return nil, p.errorf("unterminated tags block")
		}
		key, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		val, err := p.parseString()
		if err != nil {
			return nil, err
		}
		tags[key] = val
	}
	p.next()
	return tags, nil
}
