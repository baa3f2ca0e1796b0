package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/patchflow/patchflow/internal/ir"
)

// LoadMode controls how errors are handled during patch loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the outcome of loading a patch document.
type LoadResult struct {
	Blocks    []ir.DraftBlock
	Edges     []ir.DraftEdge
	CUEValue  cue.Value // raw value for additional processing
	FileCount int
}

// LoadError is one positioned loading error.
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

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed

	// Patch document errors
	ErrCodeNoPatch      = "E101" // No patch struct in document
	ErrCodeBlockType    = "E102" // Block missing type
	ErrCodeWireEndpoint = "E103" // Wire endpoint malformed
)

// LoadPatch loads a patch document from a directory of CUE files.
//
// The document shape is:
//
//	patch: {
//		blocks: { const1: { type: "Const" } }
//		wires:  { w1: { from: "const1.out", to: "add1.a" } }
//	}
//
// Block and wire ids are the CUE field labels, so a document is a
// deterministic description independent of field order.
func LoadPatch(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("patch directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing patch directory: %v", err)}}
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

	patchVal := value.LookupPath(cue.ParsePath("patch"))
	if !patchVal.Exists() {
		return result, []error{&LoadError{Code: ErrCodeNoPatch, Message: "document has no patch struct"}}
	}

	var errs []error

	blocksVal := patchVal.LookupPath(cue.ParsePath("blocks"))
	if blocksVal.Exists() {
		iter, iterErr := blocksVal.Fields()
		if iterErr != nil {
			errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating blocks: %v", iterErr)})
			if mode == LoadModeFailFast {
				return result, errs
			}
		} else {
			for iter.Next() {
				block, blockErr := decodeBlock(iter.Label(), iter.Value())
				if blockErr != nil {
					errs = append(errs, blockErr)
					if mode == LoadModeFailFast {
						return result, errs
					}
					continue
				}
				result.Blocks = append(result.Blocks, block)
			}
		}
	}

	wiresVal := patchVal.LookupPath(cue.ParsePath("wires"))
	if wiresVal.Exists() {
		iter, iterErr := wiresVal.Fields()
		if iterErr != nil {
			errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating wires: %v", iterErr)})
			if mode == LoadModeFailFast {
				return result, errs
			}
		} else {
			for iter.Next() {
				edge, edgeErr := decodeWire(iter.Label(), iter.Value())
				if edgeErr != nil {
					errs = append(errs, edgeErr)
					if mode == LoadModeFailFast {
						return result, errs
					}
					continue
				}
				result.Edges = append(result.Edges, edge)
			}
		}
	}

	if len(result.Blocks) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoPatch, Message: "patch has no blocks"})
	}

	return result, errs
}

func decodeBlock(id string, v cue.Value) (ir.DraftBlock, *LoadError) {
	typeVal := v.LookupPath(cue.ParsePath("type"))
	typeName, err := typeVal.String()
	if err != nil {
		return ir.DraftBlock{}, &LoadError{
			Code:    ErrCodeBlockType,
			Message: fmt.Sprintf("block %q: type must be a string: %v", id, err),
			Pos:     v.Pos(),
		}
	}

	block := ir.DraftBlock{ID: id, Type: typeName, Origin: ir.UserOrigin()}

	paramsVal := v.LookupPath(cue.ParsePath("params"))
	if paramsVal.Exists() {
		var params map[string]any
		if err := paramsVal.Decode(&params); err != nil {
			return ir.DraftBlock{}, &LoadError{
				Code:    ErrCodeGeneric,
				Message: fmt.Sprintf("block %q: decoding params: %v", id, err),
				Pos:     paramsVal.Pos(),
			}
		}
		obj, err := ir.ObjectFromGo(params)
		if err != nil {
			return ir.DraftBlock{}, &LoadError{
				Code:    ErrCodeGeneric,
				Message: fmt.Sprintf("block %q: params: %v", id, err),
				Pos:     paramsVal.Pos(),
			}
		}
		block.Params = obj
	}

	return block, nil
}

func decodeWire(id string, v cue.Value) (ir.DraftEdge, *LoadError) {
	from, err := v.LookupPath(cue.ParsePath("from")).String()
	if err != nil {
		return ir.DraftEdge{}, &LoadError{
			Code:    ErrCodeWireEndpoint,
			Message: fmt.Sprintf("wire %q: from must be a string: %v", id, err),
			Pos:     v.Pos(),
		}
	}
	to, err := v.LookupPath(cue.ParsePath("to")).String()
	if err != nil {
		return ir.DraftEdge{}, &LoadError{
			Code:    ErrCodeWireEndpoint,
			Message: fmt.Sprintf("wire %q: to must be a string: %v", id, err),
			Pos:     v.Pos(),
		}
	}
	srcBlock, srcPort, ok := splitWireEndpoint(from)
	if !ok {
		return ir.DraftEdge{}, &LoadError{
			Code:    ErrCodeWireEndpoint,
			Message: fmt.Sprintf("wire %q: endpoint %q must be block.port", id, from),
			Pos:     v.Pos(),
		}
	}
	snkBlock, snkPort, ok := splitWireEndpoint(to)
	if !ok {
		return ir.DraftEdge{}, &LoadError{
			Code:    ErrCodeWireEndpoint,
			Message: fmt.Sprintf("wire %q: endpoint %q must be block.port", id, to),
			Pos:     v.Pos(),
		}
	}
	return ir.DraftEdge{
		ID:     id,
		Source: ir.EdgeEnd{Block: srcBlock, Port: srcPort},
		Sink:   ir.EdgeEnd{Block: snkBlock, Port: snkPort},
		Role:   ir.EdgeUserWire,
		Origin: ir.UserOrigin(),
	}, nil
}

func splitWireEndpoint(s string) (block, port string, ok bool) {
	i := strings.LastIndex(s, ".")
	if i <= 0 || i == len(s)-1 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
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
