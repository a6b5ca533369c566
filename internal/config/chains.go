package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ChainList accepts either a comma-separated scalar ("A,B,C") or a YAML list.
type ChainList []string

func (c *ChainList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*c = splitChains(node.Value)
		return nil
	case yaml.SequenceNode:
		var raw []string
		if err := node.Decode(&raw); err != nil {
			return err
		}
		out := make(ChainList, 0, len(raw))
		for _, r := range raw {
			if s := strings.TrimSpace(r); s != "" {
				out = append(out, s)
			}
		}
		*c = out
		return nil
	}
	return fmt.Errorf("target_chain: unsupported yaml kind %d", node.Kind)
}

// String renders the list in the comma form.
func (c ChainList) String() string { return strings.Join(c, ",") }

// Multi reports whether the target spans more than one chain.
func (c ChainList) Multi() bool { return len(c) > 1 }

func splitChains(s string) ChainList {
	out := ChainList{}
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
