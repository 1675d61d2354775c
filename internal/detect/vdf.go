package detect

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/andygrunwald/vdf"
)

// vdfObject is one KeyValues object as decoded by the vdf parser. Steam is
// inconsistent about key case ("LibraryFolders" vs "libraryfolders"), so
// lookups fold case.
type vdfObject map[string]any

func readVDF(path string) (vdfObject, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	doc, err := vdf.NewParser(file).Parse()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return vdfObject(doc), nil
}

func (o vdfObject) lookup(key string) (any, bool) {
	if v, ok := o[key]; ok {
		return v, true
	}
	for k, v := range o {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

// object returns the nested object under key, or nil.
func (o vdfObject) object(key string) vdfObject {
	v, _ := o.lookup(key)
	if m, ok := v.(map[string]any); ok {
		return vdfObject(m)
	}
	return nil
}

// str returns the string value under key, or "" when absent or an object.
func (o vdfObject) str(key string) string {
	v, _ := o.lookup(key)
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// numericKeys returns the keys that are decimal indexes, in numeric order.
// libraryfolders.vdf lists libraries under "0", "1", ...
func (o vdfObject) numericKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		if _, err := strconv.Atoi(k); err == nil {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.Atoi(keys[i])
		b, _ := strconv.Atoi(keys[j])
		return a < b
	})
	return keys
}
