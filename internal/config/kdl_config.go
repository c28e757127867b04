package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// kdlFileName is the engine-wide tuning file (spec §6).
const kdlFileName = "blz.kdl"

// LoadKDL reads configDir/blz.kdl. A missing file is not an error: it
// returns (nil, nil) and the caller keeps Default().
func LoadKDL(configDir string) (*Config, error) {
	path := filepath.Join(configDir, kdlFileName)
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return parseKDL(string(content))
}

// parseKDL parses raw KDL text into a Config seeded with Default(), so
// any node or field the document omits keeps its built-in value.
func parseKDL(content string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(content) == "" {
		return cfg, nil
	}

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse blz.kdl: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "data_dir":
			if s, ok := firstStringArg(n); ok {
				cfg.DataDir = s
			}
		case "fetch":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "timeout_sec":
					if v, ok := firstIntArg(cn); ok {
						cfg.Fetch.TimeoutSec = v
					}
				case "max_bytes":
					if s, ok := firstStringArg(cn); ok {
						if sz, err := parseSize(s); err == nil {
							cfg.Fetch.MaxBytes = sz
						}
					} else if v, ok := firstIntArg(cn); ok {
						cfg.Fetch.MaxBytes = int64(v)
					}
				case "retry_attempts":
					if v, ok := firstIntArg(cn); ok {
						cfg.Fetch.RetryAttempts = v
					}
				case "base_delay_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Fetch.BaseDelayMs = v
					}
				case "prefer_full":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Fetch.PreferFull = b
					}
				}
			}
		case "index":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "headings_boost":
					if v, ok := firstFloatArg(cn); ok {
						cfg.Index.HeadingsBoost = v
					}
				case "phrase_boost":
					if v, ok := firstFloatArg(cn); ok {
						cfg.Index.PhraseBoost = v
					}
				case "snippet_max_len":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.SnippetMaxLen = v
					}
				}
			}
		case "search":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "default_limit":
					if v, ok := firstIntArg(cn); ok {
						cfg.Search.DefaultLimit = v
					}
				case "max_limit":
					if v, ok := firstIntArg(cn); ok {
						cfg.Search.MaxLimit = v
					}
				}
			}
		case "log":
			for _, cn := range n.Children {
				if nodeName(cn) == "level" {
					if s, ok := firstStringArg(cn); ok {
						cfg.Log.Level = s
					}
				}
			}
		}
	}

	return cfg, nil
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

func firstFloatArg(n *document.Node) (float64, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// parseSize handles size strings like "10MB", "500KB", "1GB" for
// fetch.max_bytes.
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	var multiplier int64 = 1
	var numStr string
	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		multiplier = 1
		numStr = strings.TrimSuffix(s, "B")
	default:
		numStr = s
	}

	num, err := strconv.ParseInt(strings.TrimSpace(numStr), 10, 64)
	if err != nil {
		return 0, err
	}
	return num * multiplier, nil
}
