package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/livefetch/internal/compiler"
	"github.com/roach88/livefetch/internal/ir"
)

// LoadMode controls how errors are handled during declaration loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the declarations loaded from a directory.
type LoadResult struct {
	Entities  []ir.EntitySchema
	Queries   []compiler.NamedQuery
	CUEValue  cue.Value // The raw CUE value for additional processing
	FileCount int       // Number of CUE files found
}

// Query returns the named query.
func (r *LoadResult) Query(name string) (compiler.NamedQuery, bool) {
	for _, q := range r.Queries {
		if q.Name == name {
			return q, true
		}
	}
	return compiler.NamedQuery{}, false
}

// LoadError represents an error that occurred during declaration loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadDeclarations loads entity and query declarations from a directory of
// CUE files. If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func LoadDeclarations(dir string, mode LoadMode) (*LoadResult, []error) {
	var errs []error

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("declarations directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing declarations directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	cfg := &load.Config{Dir: dir}
	instances := load.Instances([]string{"."}, cfg)
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}

	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result := &LoadResult{
		CUEValue:  value,
		FileCount: len(cueFiles),
	}

	failFast := func(err error) bool {
		errs = append(errs, err)
		return mode == LoadModeFailFast
	}

	entitiesVal := value.LookupPath(cue.ParsePath("entity"))
	if entitiesVal.Exists() {
		iter, iterErr := entitiesVal.Fields()
		if iterErr != nil {
			if failFast(&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating entities: %v", iterErr)}) {
				return result, errs
			}
		} else {
			for iter.Next() {
				schema, compileErr := compiler.CompileEntity(iter.Value())
				if compileErr != nil {
					if failFast(convertCompileError(compileErr, "entity."+iter.Selector().String())) {
						return result, errs
					}
					continue
				}
				result.Entities = append(result.Entities, *schema)
			}
		}
	}

	queriesVal := value.LookupPath(cue.ParsePath("query"))
	if queriesVal.Exists() {
		iter, iterErr := queriesVal.Fields()
		if iterErr != nil {
			if failFast(&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating queries: %v", iterErr)}) {
				return result, errs
			}
		} else {
			for iter.Next() {
				q, compileErr := compiler.CompileQuery(iter.Value())
				if compileErr != nil {
					if failFast(convertCompileError(compileErr, "query."+iter.Selector().String())) {
						return result, errs
					}
					continue
				}
				result.Queries = append(result.Queries, *q)
			}
		}
	}

	if len(result.Entities) == 0 && len(result.Queries) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no entities or queries found in declarations"})
	}

	return result, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", context, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// Error code constants - unified across all CLI commands.
// Declaration codes match the compiler's validation codes.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeStore       = "E007" // Store open/read/write error
	ErrCodeUsage       = "E008" // Bad arguments

	ErrCodeEntityFields  = compiler.ErrEntityNoFields
	ErrCodeInvalidType   = compiler.ErrInvalidFieldType
	ErrCodeQueryEntity   = compiler.ErrUndeclaredEntity
	ErrCodeInvalidWhere  = compiler.ErrInvalidWhereClause
	ErrCodeInvalidSort   = compiler.ErrInvalidSortKey
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "fields":
		return ErrCodeEntityFields
	case "type":
		return ErrCodeInvalidType
	case "entity":
		return ErrCodeQueryEntity
	case "where", "where.op", "where.value":
		return ErrCodeInvalidWhere
	case "sort":
		return ErrCodeInvalidSort
	default:
		return ErrCodeGeneric
	}
}
