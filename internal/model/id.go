package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Node id construction. The same logical artifact always maps to the same
// id across re-scans, which is what makes re-validation idempotent.

// ACNodeID returns the node id for an acceptance criterion, "FEAT-001/AC-2".
func ACNodeID(specID, acID string) string {
	return specID + "/" + acID
}

// SplitACNodeID splits "FEAT-001/AC-2" into its spec and AC parts.
// ok is false when the id has no AC component.
func SplitACNodeID(id string) (specID, acID string, ok bool) {
	i := strings.Index(id, "/")
	if i < 0 {
		return id, "", false
	}
	return id[:i], id[i+1:], true
}

// TestNodeID returns the node id for a test symbol, "test:path#symbol".
func TestNodeID(filePath, symbol string) string {
	return "test:" + filePath + "#" + symbol
}

// CodeNodeID returns the node id for a code symbol, "code:path#symbol".
func CodeNodeID(filePath, symbol string) string {
	return "code:" + filePath + "#" + symbol
}

// PatternNodeID returns the node id for a pattern, "pattern:domain/title".
func PatternNodeID(domain, title string) string {
	return "pattern:" + domain + "/" + NormalizeTitle(title)
}

// FailureNodeID returns the node id for a failure, "failure:domain/title".
func FailureNodeID(domain, title string) string {
	return "failure:" + domain + "/" + NormalizeTitle(title)
}

// NodeKind classifies a node id by its prefix.
type NodeKind string

const (
	KindSpec    NodeKind = "spec"
	KindAC      NodeKind = "ac"
	KindTest    NodeKind = "test"
	KindCode    NodeKind = "code"
	KindPattern NodeKind = "pattern"
	KindFailure NodeKind = "failure"
)

// KindOf classifies a node id. Ids without a known prefix are specs or ACs
// depending on whether they carry an AC component.
func KindOf(id string) NodeKind {
	switch {
	case strings.HasPrefix(id, "test:"):
		return KindTest
	case strings.HasPrefix(id, "code:"):
		return KindCode
	case strings.HasPrefix(id, "pattern:"):
		return KindPattern
	case strings.HasPrefix(id, "failure:"):
		return KindFailure
	case strings.Contains(id, "/"):
		return KindAC
	default:
		return KindSpec
	}
}

// FilePathOf extracts the file path from a test: or code: node id.
// ok is false for other node kinds.
func FilePathOf(id string) (path string, ok bool) {
	var rest string
	switch {
	case strings.HasPrefix(id, "test:"):
		rest = strings.TrimPrefix(id, "test:")
	case strings.HasPrefix(id, "code:"):
		rest = strings.TrimPrefix(id, "code:")
	default:
		return "", false
	}
	if i := strings.LastIndex(rest, "#"); i >= 0 {
		return rest[:i], true
	}
	return rest, true
}

// NormalizeTitle lowercases and collapses whitespace so near-duplicate
// (domain, title) identities compare equal.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

// ContentUID derives a collision-resistant record uid from the identity
// fields plus a content hash. Two agents capturing similar-but-distinct
// entries concurrently produce distinct uids; true duplicates reconcile
// later through the import merge rule.
func ContentUID(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// LinkUID derives the stable uid for a link.
func LinkUID(from, to string, t LinkType) string {
	return ContentUID(from, to, string(t))
}
