// Package labels maps model class indices to human-readable names.
package labels

import (
	"bufio"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Unknown is the label reported for class indices outside the table.
const Unknown = "unknown"

// Table is a fixed, ordered mapping from class index (0..C-1) to label.
// It is loaded once at startup and immutable thereafter.
type Table struct {
	names []string
	index map[string]int
}

// NewTable builds a Table from an ordered list of class names.
func NewTable(names []string) *Table {
	t := &Table{
		names: append([]string(nil), names...),
		index: make(map[string]int, len(names)),
	}
	for i, name := range t.names {
		t.index[name] = i
	}
	return t
}

// Load reads a class table from a file with one label per line.
// Blank lines are skipped.
func Load(filename string) (*Table, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open class file %s", filename)
	}
	defer f.Close()

	names := []string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			names = append(names, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read class file %s", filename)
	}
	if len(names) == 0 {
		return nil, errors.Errorf("class file %s contains no labels", filename)
	}
	return NewTable(names), nil
}

// Label returns the name for a class index, or Unknown when the index is
// outside the table.
func (t *Table) Label(i int) string {
	if t == nil || i < 0 || i >= len(t.names) {
		return Unknown
	}
	return t.names[i]
}

// Index returns the class index for a name, or -1 when the name is not in
// the table.
func (t *Table) Index(name string) int {
	if t == nil {
		return -1
	}
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// Len returns the number of classes in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.names)
}
