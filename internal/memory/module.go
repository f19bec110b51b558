package memory

import (
	"fmt"

	"github.com/michaelbrown/recall/internal/sandbox"
)

func init() {
	sandbox.RegisterModule("memory", func(req sandbox.Request) map[string]sandbox.NativeFunc {
		return moduleFuncs(req)
	})
}

// moduleFuncs binds a store to the request's memory root and exposes the
// operation library under the snippet-facing convention: mutating operations
// return True/False, readers return content or an "Error: ..." string. The
// snippet can branch on either without exception handling.
func moduleFuncs(req sandbox.Request) map[string]sandbox.NativeFunc {
	var store *Store
	open := func() (*Store, error) {
		if store != nil {
			return store, nil
		}
		s, err := NewStoreWithLimits(req.Root(), limitsFromRequest(req.Limits))
		if err != nil {
			return nil, err
		}
		store = s
		return store, nil
	}

	return map[string]sandbox.NativeFunc{
		"create_file": func(args []any) (any, error) {
			path, content, err := pathAndOptional(args, "create_file", "content")
			if err != nil {
				return nil, err
			}
			s, err := open()
			if err != nil {
				return false, nil
			}
			return s.CreateFile(path, content) == nil, nil
		},
		"create_dir": func(args []any) (any, error) {
			path, err := onePath(args, "create_dir")
			if err != nil {
				return nil, err
			}
			s, err := open()
			if err != nil {
				return false, nil
			}
			return s.CreateDir(path) == nil, nil
		},
		"read_file": func(args []any) (any, error) {
			path, err := onePath(args, "read_file")
			if err != nil {
				return nil, err
			}
			s, err := open()
			if err != nil {
				return errString(err), nil
			}
			content, err := s.ReadFile(path)
			if err != nil {
				return errString(err), nil
			}
			return content, nil
		},
		"update_file": func(args []any) (any, error) {
			if len(args) != 3 {
				return nil, fmt.Errorf("update_file: want 3 arguments (path, old, new), got %d", len(args))
			}
			path, ok1 := args[0].(string)
			old, ok2 := args[1].(string)
			new, ok3 := args[2].(string)
			if !ok1 || !ok2 || !ok3 {
				return nil, fmt.Errorf("update_file: all arguments must be strings")
			}
			s, err := open()
			if err != nil {
				return errString(err), nil
			}
			if err := s.UpdateFile(path, old, new); err != nil {
				return errString(err), nil
			}
			return true, nil
		},
		"delete_file": func(args []any) (any, error) {
			path, err := onePath(args, "delete_file")
			if err != nil {
				return nil, err
			}
			s, err := open()
			if err != nil {
				return false, nil
			}
			deleted, err := s.DeleteFile(path)
			if err != nil {
				return false, nil
			}
			return deleted, nil
		},
		"list_files": func(args []any) (any, error) {
			if len(args) != 0 {
				return nil, fmt.Errorf("list_files: want no arguments, got %d", len(args))
			}
			s, err := open()
			if err != nil {
				return errString(err), nil
			}
			tree, err := s.ListFiles()
			if err != nil {
				return errString(err), nil
			}
			return tree, nil
		},
		"go_to_link": func(args []any) (any, error) {
			ref, err := onePath(args, "go_to_link")
			if err != nil {
				return nil, err
			}
			s, err := open()
			if err != nil {
				return errString(err), nil
			}
			content, err := s.GoToLink(ref)
			if err != nil {
				return errString(err), nil
			}
			return content, nil
		},
		"check_if_file_exists": func(args []any) (any, error) {
			path, err := onePath(args, "check_if_file_exists")
			if err != nil {
				return nil, err
			}
			s, err := open()
			if err != nil {
				return false, nil
			}
			return s.FileExists(path), nil
		},
		"check_if_dir_exists": func(args []any) (any, error) {
			path, err := onePath(args, "check_if_dir_exists")
			if err != nil {
				return nil, err
			}
			s, err := open()
			if err != nil {
				return false, nil
			}
			return s.DirExists(path), nil
		},
		// get_size is the one reader that fails hard on a missing path,
		// matching the library contract.
		"get_size": func(args []any) (any, error) {
			path, err := onePath(args, "get_size")
			if err != nil {
				return nil, err
			}
			s, err := open()
			if err != nil {
				return nil, err
			}
			size, err := s.Size(path)
			if err != nil {
				return nil, err
			}
			return size, nil
		},
	}
}

// limitsFromRequest maps the request's write caps onto store limits. An
// all-zero value means the caller didn't set any, so the defaults apply.
func limitsFromRequest(wl sandbox.WriteLimits) Limits {
	if wl == (sandbox.WriteLimits{}) {
		return DefaultLimits()
	}
	return Limits{
		FileSize:  wl.FileBytes,
		DirSize:   wl.DirBytes,
		StoreSize: wl.TotalBytes,
	}
}

func errString(err error) string {
	return "Error: " + err.Error()
}

func onePath(args []any, name string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%s: want 1 argument (path), got %d", name, len(args))
	}
	path, ok := args[0].(string)
	if !ok {
		return "", fmt.Errorf("%s: path must be a string", name)
	}
	return path, nil
}

func pathAndOptional(args []any, name, second string) (string, string, error) {
	if len(args) < 1 || len(args) > 2 {
		return "", "", fmt.Errorf("%s: want 1 or 2 arguments (path, %s?), got %d", name, second, len(args))
	}
	path, ok := args[0].(string)
	if !ok {
		return "", "", fmt.Errorf("%s: path must be a string", name)
	}
	content := ""
	if len(args) == 2 {
		content, ok = args[1].(string)
		if !ok {
			return "", "", fmt.Errorf("%s: %s must be a string", name, second)
		}
	}
	return path, content, nil
}
