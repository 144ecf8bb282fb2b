package vocab

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultVocabulary []byte

// File is the on-disk vocabulary format.
//
// Example:
//
//	base_url: "https://cdn.example.com/signs/"
//	words:
//	  HELLO: hello.gif
//	  GOOD: good.gif
//	substitutions:
//	  NICE: GOOD
type File struct {
	BaseURL       string            `yaml:"base_url"`
	Words         map[string]string `yaml:"words"`
	Substitutions map[string]string `yaml:"substitutions"`
}

// Load reads a vocabulary YAML file from disk.
func Load(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vocab: open %q: %w", path, err)
	}
	defer f.Close()

	s, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("vocab: parse %q: %w", path, err)
	}
	return s, nil
}

// LoadFromReader decodes a vocabulary from r. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Store, error) {
	var vf File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&vf); err != nil {
		return nil, fmt.Errorf("vocab: decode yaml: %w", err)
	}
	if len(vf.Words) == 0 {
		return nil, fmt.Errorf("vocab: vocabulary has no words")
	}

	entries := make([]Entry, 0, len(vf.Words))
	for w, ref := range vf.Words {
		entries = append(entries, Entry{Word: w, MediaRef: ref})
	}
	subs := make([]Substitution, 0, len(vf.Substitutions))
	for from, to := range vf.Substitutions {
		subs = append(subs, Substitution{From: from, To: to})
	}
	return New(vf.BaseURL, entries, subs)
}

// Default returns the vocabulary compiled into the binary.
func Default() (*Store, error) {
	return LoadFromReader(bytes.NewReader(defaultVocabulary))
}
