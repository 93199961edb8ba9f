package util

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"slices"
)

var ErrFileTooLarge = errors.New("file exceeds the maximum upload size")

type MultipartValues map[string]any

type MultipartFile struct {
	Field  string
	File   multipart.File
	Header *multipart.FileHeader
}

// Filename is empty for a file part submitted without a selected file.
func (mf *MultipartFile) Filename() string {
	if mf.Header == nil {
		return ""
	}

	return mf.Header.Filename
}

func (mf *MultipartFile) Close() {
	if mf.File != nil {
		mf.File.Close()
	}
}

type ParsedMultipart struct {
	Values MultipartValues
	Files  []MultipartFile
}

func (pm *ParsedMultipart) CloseFiles() {
	for _, mf := range pm.Files {
		if mf.File != nil {
			mf.File.Close()
		}
	}
}

func (pm *ParsedMultipart) FileByKey(key string) *MultipartFile {
	for _, mf := range pm.Files {
		if mf.Field == key {
			return &mf
		}
	}

	return nil
}

// ParseMultipart reads the whole form. Files spill to disk past maxMemory;
// any file larger than maxFileSize fails the parse.
func ParseMultipart(w http.ResponseWriter, r *http.Request, maxMemory, maxFileSize int64) (*ParsedMultipart, error) {
	if maxFileSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxFileSize+maxMemory)
	}

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, ErrFileTooLarge
		}
		return nil, err
	}

	files, err := extractFiles(r, maxFileSize)
	if err != nil {
		return nil, err
	}

	return &ParsedMultipart{
		Values: extractValues(r),
		Files:  files,
	}, nil
}

// ParseMultipartWithFirstFile parses the form and picks the first file found
// under keys, closing any others. The returned file is nil when none of the
// keys was present. A part sent without a filename is returned with a nil
// File so callers can tell "no part" from "nothing selected".
func ParseMultipartWithFirstFile(w http.ResponseWriter, r *http.Request, maxMemory, maxFileSize int64, keys []string) (MultipartValues, *MultipartFile, error) {
	parsed, err := ParseMultipart(w, r, maxMemory, maxFileSize)
	if err != nil {
		return nil, nil, err
	}

	var chosen *MultipartFile
	keep := -1
	for _, key := range keys {
		if i := slices.IndexFunc(parsed.Files, func(mf MultipartFile) bool { return mf.Field == key }); i >= 0 {
			keep = i
			chosen = &parsed.Files[i]
			break
		}
		if _, ok := parsed.Values[key]; ok {
			delete(parsed.Values, key)
			chosen = &MultipartFile{Field: key}
			break
		}
	}

	for i := range parsed.Files {
		if i != keep {
			parsed.Files[i].Close()
		}
	}

	return parsed.Values, chosen, nil
}

func extractValues(r *http.Request) MultipartValues {
	values := make(MultipartValues)

	if r.MultipartForm != nil {
		for key, arr := range r.MultipartForm.Value {
			switch len(arr) {
			case 0:
				continue
			case 1:
				values[key] = arr[0]
			default:
				asAny := make([]any, len(arr))
				for i, v := range arr {
					asAny[i] = v
				}
				values[key] = asAny
			}
		}
	}

	return values
}

func extractFiles(r *http.Request, maxFileSize int64) ([]MultipartFile, error) {
	var filesOut []MultipartFile

	closeAll := func() {
		for _, mf := range filesOut {
			mf.Close()
		}
	}

	for key, fhs := range r.MultipartForm.File {
		for _, fh := range fhs {
			if maxFileSize > 0 && fh.Size > maxFileSize {
				closeAll()
				return nil, fmt.Errorf("%w: %q is %d bytes", ErrFileTooLarge, fh.Filename, fh.Size)
			}

			f, err := fh.Open()
			if err != nil {
				closeAll()
				return nil, fmt.Errorf("could not open uploaded file %q: %w", fh.Filename, err)
			}

			filesOut = append(filesOut, MultipartFile{Field: key, File: f, Header: fh})
		}
	}

	return filesOut, nil
}
