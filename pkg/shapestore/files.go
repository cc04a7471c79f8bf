package shapestore

import (
	"os"
	"path/filepath"
	"strings"
)

// fileSet holds the resolved paths of a shapefile and its side files. An
// empty path means the side file does not exist.
type fileSet struct {
	shp, dbf, prj, cpg string
	base               string // base name without extension
}

// resolveFiles locates the .shp named by path and its side files,
// accepting any case for the extensions.
func resolveFiles(path string) (fileSet, error) {
	dir := filepath.Dir(path)
	name := filepath.Base(path)
	if strings.EqualFold(filepath.Ext(name), ".shp") {
		name = name[:len(name)-len(".shp")]
	}

	fs := fileSet{base: name}
	var err error
	if fs.shp, err = sideFile(dir, name, ".shp"); err != nil {
		return fs, err
	}
	if fs.shp == "" {
		return fs, &os.PathError{Op: "open", Path: filepath.Join(dir, name+".shp"), Err: os.ErrNotExist}
	}
	fs.dbf, _ = sideFile(dir, name, ".dbf")
	fs.prj, _ = sideFile(dir, name, ".prj")
	fs.cpg, _ = sideFile(dir, name, ".cpg")
	return fs, nil
}

// sideFile returns the path of base+ext in dir, trying the lower and upper
// case extension first and then a case-insensitive directory scan.
func sideFile(dir, base, ext string) (string, error) {
	for _, e := range []string{ext, strings.ToUpper(ext)} {
		p := filepath.Join(dir, base+e)
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p, nil
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(e.Name(), base+ext) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", nil
}
