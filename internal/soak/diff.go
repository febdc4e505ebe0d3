package soak

import (
	"strconv"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// maxDiffLines bounds the listing attached to a mismatch error.
const maxDiffLines = 40

func keyLines(keys []int) string {
	var sb strings.Builder

	for _, key := range keys {
		sb.WriteString(strconv.Itoa(key))
		sb.WriteByte('\n')
	}

	return sb.String()
}

// keysDiff renders the keys missing from the tree with "-" and the
// unexpected ones with "+". It returns "" when the listings match.
func keysDiff(want, got []int) string {
	dmp := diffmatchpatch.New()
	src, dst, lines := dmp.DiffLinesToRunes(keyLines(want), keyLines(got))
	diffs := dmp.DiffCharsToLines(dmp.DiffMainRunes(src, dst, false), lines)

	var sb strings.Builder

	written := 0

	for _, d := range diffs {
		var prefix string

		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		case diffmatchpatch.DiffEqual:
			continue
		}

		for line := range strings.SplitSeq(strings.TrimSuffix(d.Text, "\n"), "\n") {
			if written == maxDiffLines {
				sb.WriteString("...\n")

				return sb.String()
			}

			sb.WriteString(prefix)
			sb.WriteString(line)
			sb.WriteByte('\n')

			written++
		}
	}

	return sb.String()
}
