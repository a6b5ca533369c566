package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/binder-design/go-runner/internal/binder"
)

// #region overrides
// Override is one key=value argument in Hydra style.
type Override struct {
	Key   string
	Value string
}

// ParseOverrides splits key=value arguments. A leading "+" on the key is ignored.
func ParseOverrides(args []string) ([]Override, error) {
	out := make([]Override, 0, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimPrefix(strings.TrimSpace(key), "+")
		if !ok || key == "" {
			return nil, binder.Configurationf("argument %q is not key=value", arg)
		}
		out = append(out, Override{Key: key, Value: strings.TrimSpace(value)})
	}
	return out, nil
}

// #endregion overrides

// #region resolver
// group is a config group selected by name on the command line.
type group struct {
	key string   // override key, e.g. "filter.initial"
	dir string   // directory under the config root
	at  []string // where the overlay is merged in the tree
}

var groups = []group{
	{key: "run", dir: "run"},
	{key: "target", dir: "target", at: []string{"target"}},
	{key: "filter.initial", dir: filepath.Join("filter", "initial"), at: []string{"filter", "initial"}},
	{key: "filter.final", dir: filepath.Join("filter", "final"), at: []string{"filter", "final"}},
}

func isGroupKey(key string) bool {
	for _, g := range groups {
		if g.key == key {
			return true
		}
	}
	return false
}

// Resolver merges base, run, target and filter overlays found under Dir, then
// applies dotted overrides, then normalizes and validates the result.
type Resolver struct {
	Dir string
}

// Resolve produces the effective RunConfig for the given arguments.
func (r Resolver) Resolve(args []string) (RunConfig, error) {
	overrides, err := ParseOverrides(args)
	if err != nil {
		return RunConfig{}, err
	}

	tree, err := toTree(Default())
	if err != nil {
		return RunConfig{}, err
	}
	if r.Dir != "" {
		if _, err := mergeFile(tree, nil, filepath.Join(r.Dir, "config.yaml")); err != nil {
			return RunConfig{}, err
		}
	}

	selected := make(map[string]string)
	for _, o := range overrides {
		if isGroupKey(o.Key) {
			selected[o.Key] = o.Value
		}
	}
	for _, g := range groups {
		name, ok := selected[g.key]
		if !ok {
			continue
		}
		found := false
		if r.Dir != "" {
			found, err = mergeFile(tree, g.at, filepath.Join(r.Dir, g.dir, name+".yaml"))
			if err != nil {
				return RunConfig{}, err
			}
		}
		switch {
		case g.key == "run":
			// run=<modality> always pins the binder type.
			tree["type"] = name
		case !found:
			return RunConfig{}, binder.Configurationf("no %s config named %q under %s", g.key, name, r.Dir)
		}
	}

	for _, o := range overrides {
		if isGroupKey(o.Key) {
			continue
		}
		node, err := scalarNode(o.Value)
		if err != nil {
			return RunConfig{}, binder.Configurationf("override %s: %v", o.Key, err)
		}
		setPath(tree, strings.Split(o.Key, "."), node)
	}

	cfg, err := decodeTree(tree)
	if err != nil {
		return RunConfig{}, err
	}
	if err := Normalize(&cfg); err != nil {
		return RunConfig{}, err
	}
	if err := Validate(cfg); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

// Load decodes a single already-resolved config file, e.g. a run's config.yaml snapshot.
func Load(path string) (RunConfig, error) {
	tree := map[string]any{}
	if _, err := mergeFile(tree, nil, path); err != nil {
		return RunConfig{}, err
	}
	cfg, err := decodeTree(tree)
	if err != nil {
		return RunConfig{}, err
	}
	if err := Normalize(&cfg); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

// #endregion resolver

// #region tree-helpers
func toTree(cfg RunConfig) (map[string]any, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal defaults: %w", err)
	}
	tree := map[string]any{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("unmarshal defaults: %w", err)
	}
	return tree, nil
}

// mergeFile deep-merges the YAML mapping at path into tree under at.
// A missing file reports found=false without error.
func mergeFile(tree map[string]any, at []string, path string) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read config %s: %w", path, err)
	}
	layer := map[string]any{}
	if err := yaml.Unmarshal(data, &layer); err != nil {
		return true, binder.Configurationf("parse %s: %v", path, err)
	}
	deepMerge(subtree(tree, at), layer)
	return true, nil
}

func deepMerge(dst, src map[string]any) {
	for k, v := range src {
		sv, srcIsMap := v.(map[string]any)
		dv, dstIsMap := dst[k].(map[string]any)
		if srcIsMap && dstIsMap {
			deepMerge(dv, sv)
			continue
		}
		dst[k] = v
	}
}

func subtree(tree map[string]any, path []string) map[string]any {
	cur := tree
	for _, p := range path {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
	return cur
}

func setPath(tree map[string]any, path []string, v any) {
	parent := subtree(tree, path[:len(path)-1])
	parent[path[len(path)-1]] = v
}

// scalarNode parses an override value as YAML but keeps its original text,
// so "001" stays "001" when the target field is a string.
func scalarNode(value string) (*yaml.Node, error) {
	if value == "" {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: ""}, nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(value), &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}, nil
	}
	return doc.Content[0], nil
}

func decodeTree(tree map[string]any) (RunConfig, error) {
	data, err := yaml.Marshal(tree)
	if err != nil {
		return RunConfig{}, fmt.Errorf("marshal merged config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var cfg RunConfig
	if err := dec.Decode(&cfg); err != nil {
		return RunConfig{}, binder.Configurationf("decode merged config: %v", err)
	}
	return cfg, nil
}

// #endregion tree-helpers
