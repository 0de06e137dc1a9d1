package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docfinder/internal/filestore"
	"github.com/xxxsen/docfinder/internal/model"
	appErr "github.com/xxxsen/docfinder/internal/pkg/errors"
)

const maxDocumentBytes = 32 << 20

// Supported reports whether name has an extension the loader can read.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".text", ".md", ".markdown":
		return true
	}
	return false
}

// Parse converts raw file content to plain text according to the extension of name.
func Parse(name string, data []byte) (string, error) {
	if !Supported(name) {
		return "", appErr.New(appErr.ErrInvalid, "unsupported document type: "+name)
	}
	if !utf8.Valid(data) {
		return "", appErr.New(appErr.ErrInvalid, "file is not valid utf-8")
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return markdownToText(data), nil
	}
	return string(data), nil
}

func documentID(path string) string {
	return filepath.ToSlash(filepath.Clean(path))
}

// LoadFile reads one document. Its id is the slash-normalised path.
func LoadFile(path string) (model.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return model.Document{}, appErr.Wrap(appErr.ErrIngestion, err, path)
	}
	if info.Size() > maxDocumentBytes {
		return model.Document{}, appErr.Wrap(appErr.ErrIngestion, appErr.New(appErr.ErrInvalid, "file too large"), path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Document{}, appErr.Wrap(appErr.ErrIngestion, err, path)
	}
	text, err := Parse(path, data)
	if err != nil {
		return model.Document{}, appErr.Wrap(appErr.ErrIngestion, err, path)
	}
	id := documentID(path)
	return model.Document{ID: id, Source: id, Text: text}, nil
}

// LoadPaths loads every supported file under paths. Directories are walked recursively.
// Files that fail to load are skipped and reported in the joined error.
func LoadPaths(ctx context.Context, paths []string) ([]model.Document, error) {
	var files []string
	var errs []error
	for _, root := range paths {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if path == root || Supported(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			errs = append(errs, appErr.Wrap(appErr.ErrIngestion, err, root))
		}
	}
	sort.Strings(files)
	docs := make([]model.Document, 0, len(files))
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return docs, err
		}
		doc, err := LoadFile(path)
		if err != nil {
			logutil.GetLogger(ctx).Warn("skip document", zap.String("path", path), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, errors.Join(errs...)
}

// LoadStore loads every supported object under prefix from the file store.
// Objects removed between listing and reading are skipped.
func LoadStore(ctx context.Context, store filestore.Store, prefix string) ([]model.Document, error) {
	keys, err := store.List(ctx, prefix)
	if err != nil {
		return nil, appErr.Wrap(appErr.ErrIngestion, err, "list file store")
	}
	var errs []error
	docs := make([]model.Document, 0, len(keys))
	for _, key := range keys {
		if !Supported(key) {
			continue
		}
		doc, err := LoadObject(ctx, store, key)
		if appErr.IsNotFound(err) {
			logutil.GetLogger(ctx).Debug("stored document vanished after list", zap.String("key", key))
			continue
		}
		if err != nil {
			logutil.GetLogger(ctx).Warn("skip stored document", zap.String("key", key), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, errors.Join(errs...)
}

// LoadObject reads a single object from the file store.
func LoadObject(ctx context.Context, store filestore.Store, key string) (model.Document, error) {
	rc, err := store.Open(ctx, key)
	if err != nil {
		return model.Document{}, appErr.Wrap(appErr.ErrIngestion, err, key)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxDocumentBytes+1))
	if err != nil {
		return model.Document{}, appErr.Wrap(appErr.ErrIngestion, err, key)
	}
	if len(data) > maxDocumentBytes {
		return model.Document{}, appErr.Wrap(appErr.ErrIngestion, appErr.New(appErr.ErrInvalid, "file too large"), key)
	}
	text, err := Parse(key, data)
	if err != nil {
		return model.Document{}, appErr.Wrap(appErr.ErrIngestion, err, key)
	}
	return model.Document{ID: key, Source: fmt.Sprintf("store:%s", key), Text: text}, nil
}
