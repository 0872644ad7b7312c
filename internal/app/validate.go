package app

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"horse.fit/storify/internal/ingest"
)

type validateResult struct {
	Files     int
	Documents int
	Valid     int
	Invalid   int
}

func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	dir := fs.String("dir", "testdata/tweets", "Directory containing .json or .jsonl tweet files")
	file := fs.String("file", "", "Single .json or .jsonl file to validate (overrides --dir)")
	recursive := fs.Bool("recursive", true, "Recursively scan subdirectories")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	var files []string
	if single := strings.TrimSpace(*file); single != "" {
		files = []string{single}
	} else {
		found, err := collectJSONFiles(strings.TrimSpace(*dir), *recursive)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Validation setup failed: %v\n", err)
			return 1
		}
		files = found
	}

	result := validateResult{}
	for _, path := range files {
		result.Files++

		f, err := os.Open(path)
		if err != nil {
			result.Invalid++
			fmt.Fprintf(os.Stderr, "INVALID %s: read failed: %v\n", path, err)
			continue
		}
		scanned, invalid, err := ingest.Validate(f)
		f.Close()

		result.Documents += scanned
		result.Invalid += len(invalid)
		result.Valid += scanned - len(invalid)
		for _, doc := range invalid {
			fmt.Fprintf(os.Stderr, "INVALID %s#%d id=%q: %v\n", path, doc.Index, doc.ID, doc.Err)
		}
		if err != nil {
			result.Invalid++
			fmt.Fprintf(os.Stderr, "INVALID %s: %v\n", path, err)
		}
	}

	fmt.Printf(
		"validate files=%d documents=%d valid=%d invalid=%d dir=%s recursive=%t\n",
		result.Files,
		result.Documents,
		result.Valid,
		result.Invalid,
		strings.TrimSpace(*dir),
		*recursive,
	)

	if result.Files == 0 {
		fmt.Fprintf(os.Stderr, "Validation failed: no .json or .jsonl files found under %s\n", strings.TrimSpace(*dir))
		return 1
	}
	if result.Invalid > 0 {
		return 1
	}
	return 0
}

func collectJSONFiles(root string, recursive bool) ([]string, error) {
	cleanRoot := strings.TrimSpace(root)
	if cleanRoot == "" {
		return nil, fmt.Errorf("directory path is empty")
	}

	info, err := os.Stat(cleanRoot)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", cleanRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", cleanRoot)
	}

	var files []string
	if !recursive {
		entries, err := os.ReadDir(cleanRoot)
		if err != nil {
			return nil, fmt.Errorf("read directory %s: %w", cleanRoot, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name := entry.Name()
			if strings.HasPrefix(name, ".") {
				continue
			}
			if isDocumentFile(name) {
				files = append(files, filepath.Join(cleanRoot, name))
			}
		}
		sort.Strings(files)
		return files, nil
	}

	err = filepath.WalkDir(cleanRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != cleanRoot {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if isDocumentFile(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory %s: %w", cleanRoot, err)
	}

	sort.Strings(files)
	return files, nil
}

func isDocumentFile(name string) bool {
	ext := filepath.Ext(name)
	return strings.EqualFold(ext, ".json") || strings.EqualFold(ext, ".jsonl")
}
