package blockfs

import "strings"

// splitPath breaks path into its non-empty, slash-separated components,
// collapsing repeated slashes. A leading "/" is reported separately via
// isAbsolute so callers can pick the right starting directory.
func splitPath(path string) (components []string, isAbsolute bool) {
	isAbsolute = strings.HasPrefix(path, "/")
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			components = append(components, part)
		}
	}
	return components, isAbsolute
}

// resolveParent walks path's components but the last one, starting from
// root if path is absolute or from cwd otherwise, honoring "." and "..".
// It returns an open handle on the resulting directory and the final
// component's name (unresolved: the caller looks that up or creates it).
// The caller must Close the returned directory.
func resolveParent(fs *FileSystem, cwd *Directory, path string) (*Directory, string, error) {
	components, absolute := splitPath(path)
	// A trailing slash means the tail after the last "/" is empty; per
	// spec.md §4.5 (and pintos's split_path_to_directory) the final
	// component then defaults to ".", so "/a/b/" resolves to parent=/a/b,
	// name=".", not parent=/a, name="b".
	if strings.HasSuffix(path, "/") {
		components = append(components, ".")
	}
	if len(components) == 0 {
		return nil, "", ErrInvalidName
	}

	dir, err := startDir(fs, cwd, absolute)
	if err != nil {
		return nil, "", err
	}

	for _, name := range components[:len(components)-1] {
		next, err := stepInto(fs, dir, name)
		dir.Close()
		if err != nil {
			return nil, "", err
		}
		dir = next
	}

	return dir, components[len(components)-1], nil
}

// resolvePath walks all of path's components and returns an open directory
// on the result. Used by chdir.
func resolvePath(fs *FileSystem, cwd *Directory, path string) (*Directory, error) {
	components, absolute := splitPath(path)

	dir, err := startDir(fs, cwd, absolute)
	if err != nil {
		return nil, err
	}
	if len(components) == 0 {
		return dir, nil
	}

	for _, name := range components {
		next, err := stepInto(fs, dir, name)
		dir.Close()
		if err != nil {
			return nil, err
		}
		dir = next
	}
	return dir, nil
}

func startDir(fs *FileSystem, cwd *Directory, absolute bool) (*Directory, error) {
	if absolute || cwd == nil {
		return OpenRoot(fs)
	}
	return cwd.Reopen(), nil
}

// stepInto resolves one path component from dir, opening and returning the
// named subdirectory. "." reopens dir itself; ".." resolves to dir's
// parent, which is recorded as the ".." entry every directory but the root
// contains; the root's ".." resolves to itself.
func stepInto(fs *FileSystem, dir *Directory, name string) (*Directory, error) {
	if !validName(name) && name != "." && name != ".." {
		return nil, ErrInvalidName
	}

	sector, ok := dir.Lookup(name)
	if !ok {
		return nil, ErrNotFound
	}
	return OpenDir(fs, sector)
}
