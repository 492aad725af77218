package merge

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/aksw/quit-go/internal/errs"
	"github.com/aksw/quit-go/internal/registry"
	"github.com/aksw/quit-go/pkg/quadstore"
)

// ThreeWayResult is the outcome of a successful three-way merge.
type ThreeWayResult struct {
	Commit *quadstore.Commit
}

// ThreeWayMerge implements spec.md §4.7's "three-way" policy: merge_base is
// computed via the Git Repository Adapter, then every tracked graph file is
// merged line by line against base/target/source the way a text three-way
// merge would, since each line of an N-Triples file is an independent
// statement. A file one side left untouched takes the other side's content;
// a file both sides changed identically merges trivially; otherwise the
// non-overlapping hunks of both sides are spliced around the unchanged base
// lines, and only hunks over overlapping base line ranges are a line-overlap
// conflict, rendered as a unified diff against the base.
func ThreeWayMerge(tree GitTree, mode registry.Mode, configPath string, targetRef, sourceRef string, author quadstore.Author) (*ThreeWayResult, []quadstore.Conflict, error) {
	targetOID, err := tree.Resolve(targetRef)
	if err != nil {
		return nil, nil, err
	}
	sourceOID, err := tree.Resolve(sourceRef)
	if err != nil {
		return nil, nil, err
	}
	baseOID, err := tree.MergeBase(targetOID, sourceOID)
	if err != nil {
		return nil, nil, err
	}

	paths, err := unionPaths(tree, baseOID, targetOID, sourceOID)
	if err != nil {
		return nil, nil, err
	}

	var toCommit []string
	var conflicts []quadstore.Conflict

	for _, p := range paths {
		baseContent, _ := readOrEmpty(tree, baseOID, p)
		targetContent, _ := readOrEmpty(tree, targetOID, p)
		sourceContent, _ := readOrEmpty(tree, sourceOID, p)

		if bytes.Equal(targetContent, sourceContent) {
			continue // both sides agree, nothing to stage
		}
		if bytes.Equal(sourceContent, baseContent) {
			continue // only target changed this file, its tree already has the content
		}
		if bytes.Equal(targetContent, baseContent) {
			if err := tree.WriteWorkingFile(p, sourceContent); err != nil {
				return nil, nil, err
			}
			toCommit = append(toCommit, p)
			continue
		}

		merged, ok := mergeLines(baseContent, targetContent, sourceContent)
		if !ok {
			conflicts = append(conflicts, quadstore.Conflict{
				Kind:        quadstore.ConflictLineOverlap,
				Graph:       p,
				Description: fmt.Sprintf("file %s: target and source both changed the same line(s)", p),
				Ours:        unifiedDiff(baseContent, targetContent, "base", "target"),
				Theirs:      unifiedDiff(baseContent, sourceContent, "base", "source"),
			})
			continue
		}
		if err := tree.WriteWorkingFile(p, merged); err != nil {
			return nil, nil, err
		}
		toCommit = append(toCommit, p)
	}

	if len(conflicts) > 0 {
		return nil, conflicts, errs.New(errs.MergeConflict, "three-way merge of %s into %s: %d file(s) conflict", sourceRef, targetRef, len(conflicts))
	}

	if len(toCommit) == 0 {
		oid, err := tree.Resolve(targetRef)
		if err != nil {
			return nil, nil, err
		}
		return &ThreeWayResult{Commit: &quadstore.Commit{OID: oid}}, nil, nil
	}

	sort.Strings(toCommit)
	message := fmt.Sprintf("Merge %s into %s\n\nMethod: three-way\n", sourceRef, targetRef)
	newOID, err := tree.CommitPaths(toCommit, []string{targetOID, sourceOID}, author, author, message)
	if err != nil {
		return nil, nil, err
	}
	if err := tree.UpdateRef(targetRef, newOID); err != nil {
		return nil, nil, err
	}
	return &ThreeWayResult{Commit: &quadstore.Commit{OID: newOID, Parents: []string{targetOID, sourceOID}}}, nil, nil
}

func unionPaths(tree GitTree, oids ...string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, oid := range oids {
		paths, err := tree.ListFiles(oid)
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func readOrEmpty(tree GitTree, oid, path string) ([]byte, error) {
	content, err := tree.ReadBlob(oid, path)
	if err != nil {
		return nil, err
	}
	return content, nil
}

// lineEdit is one non-equal hunk from a base->side diff, expressed as the
// base line range it replaces and the replacement lines.
type lineEdit struct {
	start, end int
	lines      []string
}

// mergeLines applies a diff3-style line merge: every hunk target or source
// changed relative to base is collected, sorted by base position, and
// spliced back in around the unchanged base lines between them. Two hunks
// whose base ranges overlap mean both sides touched the same line(s); the
// merge fails and the caller reports a conflict instead of guessing which
// side wins.
func mergeLines(base, target, source []byte) ([]byte, bool) {
	baseLines := difflib.SplitLines(string(base))
	targetLines := difflib.SplitLines(string(target))
	sourceLines := difflib.SplitLines(string(source))

	var edits []lineEdit
	for _, op := range difflib.NewMatcher(baseLines, targetLines).GetOpCodes() {
		if op.Tag != 'e' {
			edits = append(edits, lineEdit{op.I1, op.I2, targetLines[op.J1:op.J2]})
		}
	}
	for _, op := range difflib.NewMatcher(baseLines, sourceLines).GetOpCodes() {
		if op.Tag != 'e' {
			edits = append(edits, lineEdit{op.I1, op.I2, sourceLines[op.J1:op.J2]})
		}
	}
	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })

	for i := 1; i < len(edits); i++ {
		if edits[i].start < edits[i-1].end {
			return nil, false
		}
	}

	var out []string
	pos := 0
	for _, e := range edits {
		out = append(out, baseLines[pos:e.start]...)
		out = append(out, e.lines...)
		pos = e.end
	}
	out = append(out, baseLines[pos:]...)
	return []byte(joinLines(out)), true
}

func joinLines(lines []string) string {
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
	}
	return buf.String()
}

func unifiedDiff(a, b []byte, fromLabel, toLabel string) []string {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(a)),
		B:        difflib.SplitLines(string(b)),
		FromFile: fromLabel,
		ToFile:   toLabel,
		Context:  1,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return nil
	}
	return difflib.SplitLines(text)
}
