package tree

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Descriptor points at a node's document on the results host, the url is
// relative to the base host.
type Descriptor struct {
	Name string `json:"name"`
	Url  string `json:"url"`
}

// Node is the parsed content of a non-leaf document, only the fields needed
// to walk the hierarchy are decoded.
type Node struct {
	Name       string                `json:"name"`
	SubRegions map[string]Descriptor `json:"subRegions"`
	Contests   []Descriptor          `json:"contests"`
}

// Contest is the parsed content of a contest document.
type Contest struct {
	Name string `json:"name"`
}

// Children returns the node's sub regions ordered by key.
func (n Node) Children() []Descriptor {
	keys := make([]string, 0, len(n.SubRegions))
	for k := range n.SubRegions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Descriptor, len(keys))
	for i, k := range keys {
		out[i] = n.SubRegions[k]
	}
	return out
}

// Keys returns the node's sub region keys in sorted order.
func (n Node) Keys() []string {
	keys := make([]string, 0, len(n.SubRegions))
	for k := range n.SubRegions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func ParseNode(body []byte) (Node, error) {
	var node Node
	err := json.Unmarshal(body, &node)
	return node, err
}

func ParseContest(body []byte) (Contest, error) {
	var contest Contest
	err := json.Unmarshal(body, &contest)
	return contest, err
}

type Level int

const (
	LevelRoot Level = iota
	LevelRegion
	LevelProvince
	LevelMunicipality
	LevelBarangay
	LevelPrecinct
	LevelContest
)

var levelNames = [...]string{
	"root",
	"region",
	"province",
	"municipality",
	"barangay",
	"precinct",
	"contest",
}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return "unknown"
	}
	return levelNames[l]
}

// Next returns the level of this level's children, contests have no children
// so the contest level is its own successor.
func (l Level) Next() Level {
	if l >= LevelContest {
		return LevelContest
	}
	return l + 1
}

// Sanitize makes a display name usable as a single path component.
func Sanitize(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	if os.PathSeparator != '/' {
		name = strings.ReplaceAll(name, string(os.PathSeparator), "_")
	}
	return name
}

// Path is the list of sanitized ancestor names of a node. It is never mutated
// in place, Child always returns a fresh copy.
type Path []string

func (p Path) Child(name string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, Sanitize(name))
}

// Depth is the number of ancestors, the root has depth 0.
func (p Path) Depth() int {
	return len(p)
}

// Dir returns the directory holding the cache entries of this path's children.
func (p Path) Dir(base string) string {
	parts := make([]string, 0, len(p)+1)
	parts = append(parts, base)
	parts = append(parts, p...)
	return filepath.Join(parts...)
}

// File returns the cache entry of a node named `name` below this path.
func (p Path) File(base, name string) string {
	return filepath.Join(p.Dir(base), Sanitize(name)+".json")
}

func (p Path) String() string {
	return strings.Join(p, "/")
}
